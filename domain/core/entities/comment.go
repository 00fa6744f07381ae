package entities

import "time"

// Comment is an append-only reply to a post, deletable by its author.
type Comment struct {
	ID           string    `json:"id"`
	PostID       string    `json:"postId"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	AuthorAvatar string    `json:"authorAvatar,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`

	// Pending marks an optimistic insert not yet confirmed by the store.
	Pending bool `json:"pending,omitempty"`
}

// IsOwnedBy reports whether userID authored the comment.
func (c Comment) IsOwnedBy(userID string) bool {
	return userID != "" && c.AuthorID == userID
}
