package feed

import (
	"context"
	"time"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	pkgerrors "locallens/pkg/errors"

	"go.uber.org/zap"
)

// Page is one distance-filtered page of the feed.
type Page struct {
	Posts      []entities.Post
	NextCursor string
	// HasMore is true when the store returned a full page, counted before
	// distance filtering. Pages near the radius edge can therefore report
	// more results than remain.
	HasMore bool
}

// QueryEngine runs bounded, cursor-paginated feed queries.
type QueryEngine struct {
	posts    ports.PostReader
	pageSize int
	now      func() time.Time
	logger   *zap.Logger
}

// NewQueryEngine creates a query engine with a fixed page size.
func NewQueryEngine(posts ports.PostReader, pageSize int, now func() time.Time, logger *zap.Logger) *QueryEngine {
	if now == nil {
		now = time.Now
	}
	return &QueryEngine{posts: posts, pageSize: pageSize, now: now, logger: logger}
}

// FetchPage returns the page after cursor ("" for the first page).
// Store errors are returned as is.
func (e *QueryEngine) FetchPage(ctx context.Context, sc valueobjects.SearchContext, cursor string) (Page, error) {
	if sc.IsZero() {
		return Page{}, pkgerrors.NewValidationError("search context is required")
	}

	raw, err := e.posts.QueryActivePosts(ctx, ports.PostQuery{
		Now:    e.now(),
		Limit:  e.pageSize,
		Cursor: cursor,
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Posts:   filterWithin(sc, raw.Posts),
		HasMore: len(raw.Posts) == e.pageSize,
	}
	if page.HasMore {
		page.NextCursor = raw.NextCursor
	}

	e.logger.Debug("Fetched feed page",
		zap.String("context", sc.Key()),
		zap.Int("raw", len(raw.Posts)),
		zap.Int("within_radius", len(page.Posts)),
		zap.Bool("has_more", page.HasMore),
	)
	return page, nil
}

func filterWithin(sc valueobjects.SearchContext, posts []entities.Post) []entities.Post {
	out := make([]entities.Post, 0, len(posts))
	for _, p := range posts {
		if sc.Contains(p.Location) {
			out = append(out, p)
		}
	}
	return out
}
