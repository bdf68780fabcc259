package post

import (
	"postsvc/internal/es"
)

const (
	PostType es.AggregateType = "post"

	PostCreated   es.EventType = "post.created"
	PostUpdated   es.EventType = "post.updated"
	PostVoted     es.EventType = "post.voted"
	CommentAdded  es.EventType = "post.comment_added"
	PostModerated es.EventType = "post.moderated"
	PostDeleted   es.EventType = "post.deleted"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
	StatusFlagged  Status = "flagged"
	StatusRemoved  Status = "removed"
	StatusDeleted  Status = "deleted"
)

type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

type ModerationAction string

const (
	ActionApprove ModerationAction = "approve"
	ActionReject  ModerationAction = "reject"
	ActionFlag    ModerationAction = "flag"
	ActionRemove  ModerationAction = "remove"
)

const (
	maxTitleLength   = 200
	maxContentLength = 10000
	maxCommentLength = 2000
)

// StreamName derives the stream a post's events live in.
func StreamName(postID string) string {
	return "post-" + postID
}
