package events

import "time"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

const (
	TypePostCreated     = "post.created"
	TypePostDeactivated = "post.deactivated"
	TypeVoteCast        = "vote.cast"
	TypeCommentAdded    = "comment.added"
	TypeCommentDeleted  = "comment.deleted"
)

func newBase(aggregateID, eventType string, at time.Time) BaseEvent {
	return BaseEvent{AggregateID: aggregateID, EventType: eventType, Timestamp: at, Version: 1}
}

// PostCreated is raised after a post is stored.
type PostCreated struct {
	BaseEvent
	AuthorID string `json:"author_id"`
	CellID   string `json:"cell_id"`
}

func NewPostCreated(postID, authorID, cellID string, at time.Time) PostCreated {
	return PostCreated{BaseEvent: newBase(postID, TypePostCreated, at), AuthorID: authorID, CellID: cellID}
}

// PostDeactivated is raised after an author soft-deletes a post.
type PostDeactivated struct {
	BaseEvent
	AuthorID string `json:"author_id"`
}

func NewPostDeactivated(postID, authorID string, at time.Time) PostDeactivated {
	return PostDeactivated{BaseEvent: newBase(postID, TypePostDeactivated, at), AuthorID: authorID}
}

// VoteCast is raised after a vote batch commits. Direction is empty when the
// vote was removed.
type VoteCast struct {
	BaseEvent
	VoterID   string `json:"voter_id"`
	Direction string `json:"direction"`
	UpDelta   int    `json:"up_delta"`
	DownDelta int    `json:"down_delta"`
}

func NewVoteCast(postID, voterID, direction string, upDelta, downDelta int, at time.Time) VoteCast {
	return VoteCast{
		BaseEvent: newBase(postID, TypeVoteCast, at),
		VoterID:   voterID,
		Direction: direction,
		UpDelta:   upDelta,
		DownDelta: downDelta,
	}
}

// CommentAdded is raised after a comment batch commits.
type CommentAdded struct {
	BaseEvent
	CommentID string `json:"comment_id"`
	AuthorID  string `json:"author_id"`
}

func NewCommentAdded(postID, commentID, authorID string, at time.Time) CommentAdded {
	return CommentAdded{BaseEvent: newBase(postID, TypeCommentAdded, at), CommentID: commentID, AuthorID: authorID}
}

// CommentDeleted is raised after an author deletes a comment.
type CommentDeleted struct {
	BaseEvent
	CommentID string `json:"comment_id"`
	AuthorID  string `json:"author_id"`
}

func NewCommentDeleted(postID, commentID, authorID string, at time.Time) CommentDeleted {
	return CommentDeleted{BaseEvent: newBase(postID, TypeCommentDeleted, at), CommentID: commentID, AuthorID: authorID}
}
