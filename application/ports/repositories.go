package ports

import (
	"context"
	"time"

	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
)

// PostQuery selects active, unexpired posts in feed order
// (expiry ascending, then creation time descending).
type PostQuery struct {
	Now    time.Time
	Limit  int
	Cursor string
}

// PostPage is one raw page as returned by the store, before any distance
// filtering. NextCursor references the last post in Posts.
type PostPage struct {
	Posts      []entities.Post
	NextCursor string
}

// PostReader defines read access to posts
type PostReader interface {
	// QueryActivePosts returns at most q.Limit posts after q.Cursor
	QueryActivePosts(ctx context.Context, q PostQuery) (PostPage, error)

	// GetPost returns a NOT_FOUND error when the post does not exist
	GetPost(ctx context.Context, id string) (*entities.Post, error)

	// QueryPostsByAuthor returns an author's posts, newest first
	QueryPostsByAuthor(ctx context.Context, authorID string, limit int, cursor string) (PostPage, error)
}

// Unsubscribe stops a subscription. Calling it more than once is safe.
type Unsubscribe func()

// WatchQuery configures a live subscription on active posts.
type WatchQuery struct {
	Limit int
	Now   func() time.Time
}

// PostWatcher pushes the current set of active posts whenever it changes.
type PostWatcher interface {
	WatchActivePosts(ctx context.Context, q WatchQuery, onSnapshot func([]entities.Post)) (Unsubscribe, error)
}

// PostWriter defines writes on posts
type PostWriter interface {
	// CreatePost stores the post and increments the author's notesCount in one batch
	CreatePost(ctx context.Context, post entities.Post) error

	// DeactivatePost flips the active flag off
	DeactivatePost(ctx context.Context, postID string) error
}

// VoteBatch is the all-or-nothing write behind a vote toggle.
type VoteBatch struct {
	VoterID string
	PostID  string
	// Existing is the vote being replaced or removed, nil if none.
	Existing *entities.Vote
	// Next is the vote to store, nil when the vote is being cleared.
	Next       *entities.Vote
	Transition valueobjects.Transition
}

// VoteReader looks up the current user's vote on a post
type VoteReader interface {
	// GetUserVote returns nil, nil when the voter has not voted
	GetUserVote(ctx context.Context, voterID, postID string) (*entities.Vote, error)
}

// VoteStore defines vote persistence
type VoteStore interface {
	VoteReader

	// CommitVote applies the post counters, the vote record and the voter's
	// votesCount atomically
	CommitVote(ctx context.Context, batch VoteBatch) error
}

// CommentPage is one page of comments, newest first.
type CommentPage struct {
	Comments   []entities.Comment
	NextCursor string
}

// CommentStore defines comment persistence
type CommentStore interface {
	QueryComments(ctx context.Context, postID string, limit int, cursor string) (CommentPage, error)
	GetComment(ctx context.Context, id string) (*entities.Comment, error)

	// CreateComment stores the comment and increments the post's commentsCount in one batch
	CreateComment(ctx context.Context, comment entities.Comment) error

	// DeleteComment removes the comment and decrements the post's commentsCount in one batch
	DeleteComment(ctx context.Context, comment entities.Comment) error
}

// UserStore defines user profile persistence
type UserStore interface {
	GetUser(ctx context.Context, id string) (*entities.User, error)
	SaveUser(ctx context.Context, user entities.User) error
}

// RemoteStore is the full set of remote collections the engine talks to.
type RemoteStore interface {
	PostReader
	PostWatcher
	PostWriter
	VoteStore
	CommentStore
	UserStore
}
