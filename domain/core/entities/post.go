package entities

import (
	"time"

	"locallens/domain/core/valueobjects"
	"locallens/domain/geo"
)

// Post is a time-limited note pinned to a location.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	AuthorName    string    `json:"authorName"`
	AuthorAvatar  string    `json:"authorAvatar,omitempty"`
	Content       string    `json:"content"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	Location      geo.Point `json:"location"`
	CellID        string    `json:"cellId"`
	CellPrefixes  []string  `json:"cellPrefixes"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Upvotes       int       `json:"upvotes"`
	Downvotes     int       `json:"downvotes"`
	CommentsCount int       `json:"commentsCount"`
	IsActive      bool      `json:"isActive"`

	// UserVote is the current user's vote. It is populated client side and
	// never persisted on the post record.
	UserVote valueobjects.VoteDirection `json:"userVote,omitempty"`
}

// NewPostParams carries the validated inputs of a new post.
type NewPostParams struct {
	ID           string
	Author       Author
	Content      string
	ImageURL     string
	Location     geo.Point
	CreatedAt    time.Time
	ExpiresAfter time.Duration
}

// Author is the denormalized author snapshot stored on posts and comments.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// NewPost builds an active post and indexes its location.
func NewPost(p NewPostParams) (Post, error) {
	cellID, err := geo.Encode(p.Location.Latitude, p.Location.Longitude)
	if err != nil {
		return Post{}, err
	}
	return Post{
		ID:           p.ID,
		AuthorID:     p.Author.ID,
		AuthorName:   p.Author.Name,
		AuthorAvatar: p.Author.AvatarURL,
		Content:      p.Content,
		ImageURL:     p.ImageURL,
		Location:     p.Location,
		CellID:       cellID,
		CellPrefixes: geo.PrefixChain(cellID),
		CreatedAt:    p.CreatedAt,
		ExpiresAt:    p.CreatedAt.Add(p.ExpiresAfter),
		IsActive:     true,
	}, nil
}

// IsLive reports whether the post is active and unexpired at now.
func (p Post) IsLive(now time.Time) bool {
	return p.IsActive && p.ExpiresAt.After(now)
}

// Score is upvotes minus downvotes.
func (p Post) Score() int {
	return p.Upvotes - p.Downvotes
}

// Clone returns a copy that shares no slices with p.
func (p Post) Clone() Post {
	c := p
	if p.CellPrefixes != nil {
		c.CellPrefixes = append([]string(nil), p.CellPrefixes...)
	}
	return c
}

// ApplyTransition adjusts counters and the user vote for a vote transition.
func (p *Post) ApplyTransition(t valueobjects.Transition) {
	p.Upvotes = max(0, p.Upvotes+t.UpDelta)
	p.Downvotes = max(0, p.Downvotes+t.DownDelta)
	p.UserVote = t.To
}

// Before reports whether p sorts ahead of other in the feed order:
// expiry ascending, then creation time descending, then id.
func (p Post) Before(other Post) bool {
	if !p.ExpiresAt.Equal(other.ExpiresAt) {
		return p.ExpiresAt.Before(other.ExpiresAt)
	}
	if !p.CreatedAt.Equal(other.CreatedAt) {
		return p.CreatedAt.After(other.CreatedAt)
	}
	return p.ID < other.ID
}
