package post

import (
	"time"

	"postsvc/internal/es"
)

type PostCreatedData struct {
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PostUpdatedData struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	URL       string    `json:"url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PostVotedData struct {
	UserID   string    `json:"user_id"`
	VoteType VoteType  `json:"vote_type"`
	VotedAt  time.Time `json:"voted_at"`
}

// CommentAddedData carries the full comment text for downstream
// projections; the aggregate itself only keeps the count.
type CommentAddedData struct {
	CommentID string    `json:"comment_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	AddedAt   time.Time `json:"added_at"`
}

type PostModeratedData struct {
	ModeratorID string           `json:"moderator_id"`
	Action      ModerationAction `json:"action"`
	Reason      string           `json:"reason"`
	ModeratedAt time.Time        `json:"moderated_at"`
}

type PostDeletedData struct {
	DeletedBy string    `json:"deleted_by"`
	Reason    string    `json:"reason"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (p *PostAggregate) newEvent(eventType es.EventType, data any) es.Event {
	return es.Event{
		Type: eventType,
		Data: data,
		Metadata: es.Metadata{
			AggregateID:   p.ID,
			AggregateType: PostType,
			Version:       p.Version + 1,
			Timestamp:     p.now(),
		},
	}
}
