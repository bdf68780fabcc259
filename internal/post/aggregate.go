package post

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postsvc/internal/es"
	"postsvc/internal/util"
)

// PostAggregate is the in-memory state machine for one community post.
// All state is a fold over the post's event stream; commands validate
// against current state before any event is produced.
type PostAggregate struct {
	es.EventSourcedAggregate
	now    util.Timestamp
	logger *slog.Logger

	ID           string
	Version      int
	Title        string
	Content      string
	AuthorID     string
	Category     string
	Tags         []string
	URL          string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Upvotes      int
	Downvotes    int
	CommentCount int
	IsDeleted    bool
}

// PostState is the flat export of every aggregate field, used both as the
// snapshot payload and as the serialized view handed to callers.
type PostState struct {
	ID           string    `json:"id"`
	Version      int       `json:"version"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	AuthorID     string    `json:"author_id"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	URL          string    `json:"url,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	VoteCount    int       `json:"vote_count"`
	CommentCount int       `json:"comment_count"`
	IsDeleted    bool      `json:"is_deleted"`
}

type PostOption func(*PostAggregate)

func UseTimestamp(tp util.Timestamp) PostOption {
	return func(p *PostAggregate) {
		p.now = tp
	}
}

func NewPostAggregate(postID string, options ...PostOption) *PostAggregate {
	p := &PostAggregate{
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default().With("aggregate_type", string(PostType)),
		ID:     postID,
		Tags:   []string{},
		Status: StatusDraft,
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// FromHistory rebuilds a post by replaying its ordered event history.
// Replayed events are not re-recorded as uncommitted.
func FromHistory(events []es.Event, options ...PostOption) (*PostAggregate, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("cannot rebuild post: %w", es.ErrStreamEmpty)
	}
	if events[0].Metadata.AggregateID == "" {
		return nil, errors.New("cannot rebuild post: first event has no aggregate ID")
	}

	p := NewPostAggregate(events[0].Metadata.AggregateID, options...)
	if err := p.Replay(events...); err != nil {
		return nil, err
	}
	return p, nil
}

// FromState reconstructs a post by field-copying a snapshot export.
func FromState(state PostState, options ...PostOption) *PostAggregate {
	p := NewPostAggregate(state.ID, options...)
	p.Version = state.Version
	p.Title = state.Title
	p.Content = state.Content
	p.AuthorID = state.AuthorID
	p.Category = state.Category
	if state.Tags != nil {
		p.Tags = state.Tags
	}
	p.URL = state.URL
	p.Status = state.Status
	p.CreatedAt = state.CreatedAt
	p.UpdatedAt = state.UpdatedAt
	p.Upvotes = state.Upvotes
	p.Downvotes = state.Downvotes
	p.CommentCount = state.CommentCount
	p.IsDeleted = state.IsDeleted
	return p
}

type CreateOptions struct {
	Category string
	Tags     []string
	URL      string
}

// Create emits PostCreated and brings a fresh post to version 1 with
// status active.
func (p *PostAggregate) Create(authorID, title, content string, opts CreateOptions) error {
	if p.Version > 0 {
		return errors.New("post already created")
	}
	if p.ID == "" {
		return errors.New("post ID is required")
	}
	if authorID == "" {
		return errors.New("author ID is required")
	}
	if err := validateTitleAndContent(title, content); err != nil {
		return err
	}

	tags := opts.Tags
	if tags == nil {
		tags = []string{}
	}

	return p.apply(p.newEvent(PostCreated, PostCreatedData{
		PostID:    p.ID,
		AuthorID:  authorID,
		Title:     title,
		Content:   content,
		Category:  opts.Category,
		Tags:      tags,
		URL:       opts.URL,
		CreatedAt: p.now(),
	}), true)
}

// Update replaces title, content and options; author and counters are
// untouched.
func (p *PostAggregate) Update(title, content string, opts CreateOptions) error {
	if p.Version == 0 {
		return errors.New("post does not exist")
	}
	if p.IsDeleted {
		return errors.New("cannot update a deleted post")
	}
	if p.Status == StatusRemoved {
		return errors.New("cannot update a removed post")
	}
	if err := validateTitleAndContent(title, content); err != nil {
		return err
	}

	tags := opts.Tags
	if tags == nil {
		tags = []string{}
	}

	return p.apply(p.newEvent(PostUpdated, PostUpdatedData{
		Title:     title,
		Content:   content,
		Category:  opts.Category,
		Tags:      tags,
		URL:       opts.URL,
		UpdatedAt: p.now(),
	}), true)
}

// Vote tallies one up or down vote. Duplicate-vote suppression is not
// enforced here: every call increments a tally.
func (p *PostAggregate) Vote(userID string, voteType VoteType) error {
	if userID == "" {
		return errors.New("user ID is required")
	}
	if voteType != VoteUp && voteType != VoteDown {
		return fmt.Errorf("invalid vote type %q", voteType)
	}
	if p.IsDeleted {
		return errors.New("cannot vote on a deleted post")
	}
	if p.Status != StatusActive {
		return errors.New("can only vote on an active post")
	}

	return p.apply(p.newEvent(PostVoted, PostVotedData{
		UserID:   userID,
		VoteType: voteType,
		VotedAt:  p.now(),
	}), true)
}

// AddComment increments the comment count; the comment text itself lives
// only in the event payload.
func (p *PostAggregate) AddComment(commentID, authorID, content string) error {
	if commentID == "" {
		return errors.New("comment ID is required")
	}
	if authorID == "" {
		return errors.New("comment author ID is required")
	}
	if content == "" {
		return errors.New("comment content is required")
	}
	if len(content) > maxCommentLength {
		return fmt.Errorf("comment content must not exceed %d characters", maxCommentLength)
	}
	if p.IsDeleted {
		return errors.New("cannot comment on a deleted post")
	}
	if p.Status != StatusActive {
		return errors.New("can only comment on an active post")
	}

	return p.apply(p.newEvent(CommentAdded, CommentAddedData{
		CommentID: commentID,
		AuthorID:  authorID,
		Content:   content,
		AddedAt:   p.now(),
	}), true)
}

// Moderate changes the post's status per the action. A removed post is
// beyond moderation, same as a deleted one.
func (p *PostAggregate) Moderate(moderatorID string, action ModerationAction, reason string) error {
	if p.Version == 0 {
		return errors.New("post does not exist")
	}
	if moderatorID == "" {
		return errors.New("moderator ID is required")
	}
	switch action {
	case ActionApprove, ActionReject, ActionFlag, ActionRemove:
	default:
		return fmt.Errorf("invalid moderation action %q", action)
	}
	if reason == "" {
		return errors.New("moderation reason is required")
	}
	if p.IsDeleted {
		return errors.New("cannot moderate a deleted post")
	}
	if p.Status == StatusRemoved {
		return errors.New("cannot moderate a removed post")
	}

	return p.apply(p.newEvent(PostModerated, PostModeratedData{
		ModeratorID: moderatorID,
		Action:      action,
		Reason:      reason,
		ModeratedAt: p.now(),
	}), true)
}

// Delete is terminal: no command succeeds afterwards.
func (p *PostAggregate) Delete(deletedBy, reason string) error {
	if p.Version == 0 {
		return errors.New("post does not exist")
	}
	if deletedBy == "" {
		return errors.New("deleted-by user ID is required")
	}
	if p.IsDeleted {
		return errors.New("post already deleted")
	}

	return p.apply(p.newEvent(PostDeleted, PostDeletedData{
		DeletedBy: deletedBy,
		Reason:    reason,
		DeletedAt: p.now(),
	}), true)
}

// Replay applies persisted events without recording them as uncommitted.
func (p *PostAggregate) Replay(events ...es.Event) error {
	for _, event := range events {
		if err := p.apply(event, false); err != nil {
			return err
		}
	}
	return nil
}

// VoteCount is derived, never stored independently of the two tallies.
func (p *PostAggregate) VoteCount() int {
	return p.Upvotes - p.Downvotes
}

// State exports every field for snapshotting or serving to callers.
func (p *PostAggregate) State() PostState {
	return PostState{
		ID:           p.ID,
		Version:      p.Version,
		Title:        p.Title,
		Content:      p.Content,
		AuthorID:     p.AuthorID,
		Category:     p.Category,
		Tags:         p.Tags,
		URL:          p.URL,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Upvotes:      p.Upvotes,
		Downvotes:    p.Downvotes,
		VoteCount:    p.VoteCount(),
		CommentCount: p.CommentCount,
		IsDeleted:    p.IsDeleted,
	}
}

// NeedsSnapshot reports whether the post just crossed a snapshot boundary.
// The cadence is deterministic so replays reach identical decisions.
func (p *PostAggregate) NeedsSnapshot(frequency int) bool {
	return frequency > 0 && p.Version > 0 && p.Version%frequency == 0
}

// apply is the reducer: it mutates state per event type and advances the
// version by exactly one. Unknown event types are logged and skipped so a
// newer writer's events do not break older readers, but they still count
// toward the version.
func (p *PostAggregate) apply(event es.Event, record bool) error {
	switch event.Type {
	case PostCreated:
		var data PostCreatedData
		if err := decodeData(event.Data, &data); err != nil {
			return fmt.Errorf("apply %s: %w", event.Type, err)
		}
		p.ID = data.PostID
		p.AuthorID = data.AuthorID
		p.Title = data.Title
		p.Content = data.Content
		p.Category = data.Category
		if data.Tags != nil {
			p.Tags = data.Tags
		}
		p.URL = data.URL
		p.Status = StatusActive
		p.CreatedAt = data.CreatedAt
		p.UpdatedAt = data.CreatedAt
		p.Upvotes = 0
		p.Downvotes = 0
		p.CommentCount = 0
		p.IsDeleted = false

	case PostUpdated:
		var data PostUpdatedData
		if err := decodeData(event.Data, &data); err != nil {
			return fmt.Errorf("apply %s: %w", event.Type, err)
		}
		p.Title = data.Title
		p.Content = data.Content
		p.Category = data.Category
		if data.Tags != nil {
			p.Tags = data.Tags
		}
		p.URL = data.URL
		p.UpdatedAt = data.UpdatedAt

	case PostVoted:
		var data PostVotedData
		if err := decodeData(event.Data, &data); err != nil {
			return fmt.Errorf("apply %s: %w", event.Type, err)
		}
		switch data.VoteType {
		case VoteUp:
			p.Upvotes++
		case VoteDown:
			p.Downvotes++
		default:
			return fmt.Errorf("apply %s: invalid vote type %q", event.Type, data.VoteType)
		}
		p.UpdatedAt = data.VotedAt

	case CommentAdded:
		var data CommentAddedData
		if err := decodeData(event.Data, &data); err != nil {
			return fmt.Errorf("apply %s: %w", event.Type, err)
		}
		p.CommentCount++
		p.UpdatedAt = data.AddedAt

	case PostModerated:
		var data PostModeratedData
		if err := decodeData(event.Data, &data); err != nil {
			return fmt.Errorf("apply %s: %w", event.Type, err)
		}
		switch data.Action {
		case ActionApprove:
			p.Status = StatusActive
		case ActionReject:
			p.Status = StatusRejected
		case ActionFlag:
			p.Status = StatusFlagged
		case ActionRemove:
			p.Status = StatusRemoved
		default:
			return fmt.Errorf("apply %s: invalid moderation action %q", event.Type, data.Action)
		}
		p.UpdatedAt = data.ModeratedAt

	case PostDeleted:
		var data PostDeletedData
		if err := decodeData(event.Data, &data); err != nil {
			return fmt.Errorf("apply %s: %w", event.Type, err)
		}
		p.IsDeleted = true
		p.Status = StatusDeleted
		p.UpdatedAt = data.DeletedAt

	default:
		p.logger.Warn("skipping unknown event type",
			"event_type", event.Type, "post_id", p.ID, "version", event.Metadata.Version)
	}

	p.Version++
	if record {
		p.Record(event)
	}
	return nil
}

func validateTitleAndContent(title, content string) error {
	if title == "" {
		return errors.New("title is required")
	}
	if len(title) > maxTitleLength {
		return fmt.Errorf("title must not exceed %d characters", maxTitleLength)
	}
	if content == "" {
		return errors.New("content is required")
	}
	if len(content) > maxContentLength {
		return fmt.Errorf("content must not exceed %d characters", maxContentLength)
	}
	return nil
}

// decodeData converts an event payload to a typed struct. Payloads arrive
// either as the concrete type (events produced in-process) or as
// map[string]any (events deserialized off the wire), so a JSON round trip
// covers both.
func decodeData(data, out any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}
