package feed

import (
	"github.com/gofiber/fiber/v2"
)

type RouteHandler struct {
	repository FeedRepository
}

func NewRouteHandler(repository FeedRepository) *RouteHandler {
	return &RouteHandler{
		repository: repository,
	}
}

func (h *RouteHandler) Get(c *fiber.Ctx) error {
	posts, err := h.repository.GetFeed(c.UserContext(), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(posts)
}
