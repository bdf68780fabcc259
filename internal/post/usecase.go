package post

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPostNotFound = errors.New("post not found")

	// ErrInvalidInput wraps command rejections so the route layer can
	// tell a bad request from an infrastructure failure.
	ErrInvalidInput = errors.New("invalid input")
)

type UseCase struct {
	repository *Repository
}

func NewUseCase(repository *Repository) *UseCase {
	return &UseCase{
		repository: repository,
	}
}

type CreatePostInput struct {
	ID       string
	AuthorID string
	Title    string
	Content  string
	Category string
	Tags     []string
	URL      string
}

func (u *UseCase) CreatePost(ctx context.Context, input CreatePostInput) (*PostAggregate, error) {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}

	p := NewPostAggregate(input.ID)
	if err := p.Create(input.AuthorID, input.Title, input.Content, CreateOptions{
		Category: input.Category,
		Tags:     input.Tags,
		URL:      input.URL,
	}); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	if _, err := u.repository.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (u *UseCase) GetPost(ctx context.Context, postID string) (*PostAggregate, error) {
	p, err := u.repository.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.IsDeleted {
		return nil, ErrPostNotFound
	}
	return p, nil
}

func (u *UseCase) UpdatePost(ctx context.Context, postID, title, content string, opts CreateOptions) (*PostAggregate, error) {
	return u.execute(ctx, postID, func(p *PostAggregate) error {
		return p.Update(title, content, opts)
	})
}

func (u *UseCase) VotePost(ctx context.Context, postID, userID string, voteType VoteType) (*PostAggregate, error) {
	return u.execute(ctx, postID, func(p *PostAggregate) error {
		return p.Vote(userID, voteType)
	})
}

func (u *UseCase) AddComment(ctx context.Context, postID, commentID, authorID, content string) (*PostAggregate, error) {
	if commentID == "" {
		commentID = uuid.NewString()
	}
	return u.execute(ctx, postID, func(p *PostAggregate) error {
		return p.AddComment(commentID, authorID, content)
	})
}

func (u *UseCase) ModeratePost(ctx context.Context, postID, moderatorID string, action ModerationAction, reason string) (*PostAggregate, error) {
	return u.execute(ctx, postID, func(p *PostAggregate) error {
		return p.Moderate(moderatorID, action, reason)
	})
}

func (u *UseCase) DeletePost(ctx context.Context, postID, deletedBy, reason string) (*PostAggregate, error) {
	return u.execute(ctx, postID, func(p *PostAggregate) error {
		return p.Delete(deletedBy, reason)
	})
}

// execute runs one command against a loaded post and saves the result.
func (u *UseCase) execute(ctx context.Context, postID string, command func(*PostAggregate) error) (*PostAggregate, error) {
	p, err := u.repository.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPostNotFound
	}

	if err := command(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	if _, err := u.repository.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
