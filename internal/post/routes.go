package post

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"postsvc/internal/es"
)

type RouteHandler struct {
	usecase    *UseCase
	repository *Repository
}

func NewRouteHandler(usecase *UseCase, repository *Repository) *RouteHandler {
	return &RouteHandler{
		usecase:    usecase,
		repository: repository,
	}
}

// Register mounts the post routes on a router group.
func (h *RouteHandler) Register(router fiber.Router) {
	router.Post("/", h.Create)
	router.Get("/:postID", h.Get)
	router.Put("/:postID", h.Update)
	router.Post("/:postID/votes", h.Vote)
	router.Post("/:postID/comments", h.AddComment)
	router.Post("/:postID/moderation", h.Moderate)
	router.Delete("/:postID", h.Delete)
}

type createPostRequest struct {
	ID       string   `json:"id"`
	AuthorID string   `json:"author_id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	URL      string   `json:"url"`
}

func (h *RouteHandler) Create(c *fiber.Ctx) error {
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	p, err := h.usecase.CreatePost(requestContext(c), CreatePostInput{
		ID:       req.ID,
		AuthorID: req.AuthorID,
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Tags:     req.Tags,
		URL:      req.URL,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(p.State())
}

func (h *RouteHandler) Get(c *fiber.Ctx) error {
	p, err := h.usecase.GetPost(requestContext(c), c.Params("postID"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(p.State())
}

type updatePostRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	URL      string   `json:"url"`
}

func (h *RouteHandler) Update(c *fiber.Ctx) error {
	var req updatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	p, err := h.usecase.UpdatePost(requestContext(c), c.Params("postID"), req.Title, req.Content, CreateOptions{
		Category: req.Category,
		Tags:     req.Tags,
		URL:      req.URL,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(p.State())
}

type voteRequest struct {
	UserID   string `json:"user_id"`
	VoteType string `json:"vote_type"`
}

func (h *RouteHandler) Vote(c *fiber.Ctx) error {
	var req voteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	p, err := h.usecase.VotePost(requestContext(c), c.Params("postID"), req.UserID, VoteType(req.VoteType))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(p.State())
}

type addCommentRequest struct {
	CommentID string `json:"comment_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
}

func (h *RouteHandler) AddComment(c *fiber.Ctx) error {
	var req addCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	p, err := h.usecase.AddComment(requestContext(c), c.Params("postID"), req.CommentID, req.AuthorID, req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(p.State())
}

type moderateRequest struct {
	ModeratorID string `json:"moderator_id"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
}

func (h *RouteHandler) Moderate(c *fiber.Ctx) error {
	var req moderateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	p, err := h.usecase.ModeratePost(requestContext(c), c.Params("postID"), req.ModeratorID, ModerationAction(req.Action), req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(p.State())
}

type deleteRequest struct {
	DeletedBy string `json:"deleted_by"`
	Reason    string `json:"reason"`
}

func (h *RouteHandler) Delete(c *fiber.Ctx) error {
	var req deleteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	p, err := h.usecase.DeletePost(requestContext(c), c.Params("postID"), req.DeletedBy, req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(p.State())
}

func (h *RouteHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.repository.Stats())
}

// requestContext tags the request context with a correlation ID so every
// event store call made for this request traces back to it.
func requestContext(c *fiber.Ctx) context.Context {
	corrID := c.Get("x-correlation-id")
	if corrID == "" {
		corrID = uuid.NewString()
	}
	return es.WithCorrelationID(c.UserContext(), corrID)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrPostNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, es.ErrConcurrency):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
