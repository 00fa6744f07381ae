package fixtures

import (
	"fmt"
	"time"

	"locallens/domain/core/entities"
	"locallens/domain/geo"

	"github.com/google/uuid"
)

// Center is the default search center used across tests (lower Manhattan).
var Center = geo.Point{Latitude: 40.7128, Longitude: -74.0060}

// BaseTime is a fixed clock reading for deterministic tests.
var BaseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// PostBuilder helps create test posts with default values
type PostBuilder struct {
	post entities.Post
}

func NewPostBuilder() *PostBuilder {
	return &PostBuilder{post: entities.Post{
		ID:         uuid.NewString(),
		AuthorID:   "author-1",
		AuthorName: "Test Author",
		Content:    "Test note",
		Location:   Center,
		CreatedAt:  BaseTime.Add(-time.Hour),
		ExpiresAt:  BaseTime.Add(7 * 24 * time.Hour),
		IsActive:   true,
	}}
}

func (b *PostBuilder) WithID(id string) *PostBuilder {
	b.post.ID = id
	return b
}

func (b *PostBuilder) WithAuthor(id string) *PostBuilder {
	b.post.AuthorID = id
	return b
}

// NorthOfCenter places the post the given number of meters north of Center.
func (b *PostBuilder) NorthOfCenter(meters float64) *PostBuilder {
	b.post.Location = geo.Point{
		Latitude:  Center.Latitude + meters/111195.0,
		Longitude: Center.Longitude,
	}
	return b
}

func (b *PostBuilder) WithCounters(up, down, comments int) *PostBuilder {
	b.post.Upvotes = up
	b.post.Downvotes = down
	b.post.CommentsCount = comments
	return b
}

func (b *PostBuilder) ExpiringIn(d time.Duration) *PostBuilder {
	b.post.ExpiresAt = BaseTime.Add(d)
	return b
}

func (b *PostBuilder) CreatedAgo(d time.Duration) *PostBuilder {
	b.post.CreatedAt = BaseTime.Add(-d)
	return b
}

func (b *PostBuilder) Inactive() *PostBuilder {
	b.post.IsActive = false
	return b
}

func (b *PostBuilder) Build() entities.Post {
	p := b.post.Clone()
	cellID, err := geo.Encode(p.Location.Latitude, p.Location.Longitude)
	if err != nil {
		panic(fmt.Sprintf("fixture location invalid: %v", err))
	}
	p.CellID = cellID
	p.CellPrefixes = geo.PrefixChain(cellID)
	return p
}

// NearbyPosts builds n posts within a few hundred meters of Center with
// distinct expiry times so their feed order is their index order.
func NearbyPosts(n int) []entities.Post {
	posts := make([]entities.Post, n)
	for i := range posts {
		posts[i] = NewPostBuilder().
			WithID(fmt.Sprintf("near-%02d", i)).
			NorthOfCenter(float64(10 * i)).
			ExpiringIn(time.Duration(i+1) * time.Hour).
			Build()
	}
	return posts
}

// FarPosts builds n posts about 20 km north of Center.
func FarPosts(n int, startHour int) []entities.Post {
	posts := make([]entities.Post, n)
	for i := range posts {
		posts[i] = NewPostBuilder().
			WithID(fmt.Sprintf("far-%02d", i)).
			NorthOfCenter(20000).
			ExpiringIn(time.Duration(startHour+i+1) * time.Hour).
			Build()
	}
	return posts
}
