package services

import (
	"context"
	"sync"

	"locallens/application/feed"
	"locallens/application/ports"
	pkgerrors "locallens/pkg/errors"

	"go.uber.org/zap"
)

// CommentService loads comment pages into the cache and refetches them
// after a comment write invalidates them.
type CommentService struct {
	store    ports.CommentStore
	cache    *feed.Cache
	pageSize int
	logger   *zap.Logger

	mu        sync.Mutex
	refreshes map[string]context.CancelFunc
	wg        sync.WaitGroup
}

// NewCommentService creates a new comment service
func NewCommentService(store ports.CommentStore, cache *feed.Cache, pageSize int, logger *zap.Logger) *CommentService {
	return &CommentService{
		store:     store,
		cache:     cache,
		pageSize:  pageSize,
		logger:    logger,
		refreshes: make(map[string]context.CancelFunc),
	}
}

// List fetches the first page of a post's comments and replaces the cached chain.
func (s *CommentService) List(ctx context.Context, postID string) ([]feed.CommentPage, error) {
	if postID == "" {
		return nil, pkgerrors.NewValidationError("post id is required")
	}
	page, err := s.fetch(ctx, postID, "")
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.cache.SetCommentPages(postID, []feed.CommentPage{page})
	return s.cache.CommentPages(postID), nil
}

// LoadMore appends the next page when the last cached page reports more.
func (s *CommentService) LoadMore(ctx context.Context, postID string) ([]feed.CommentPage, error) {
	pages := s.cache.CommentPages(postID)
	if len(pages) == 0 {
		return s.List(ctx, postID)
	}
	last := pages[len(pages)-1]
	if !last.HasMore || last.Cursor == "" {
		return pages, nil
	}
	page, err := s.fetch(ctx, postID, last.Cursor)
	if err != nil {
		return nil, err
	}
	s.cache.AppendCommentPage(postID, page)
	return s.cache.CommentPages(postID), nil
}

// Pages returns the cached chain, loading it when missing or stale.
func (s *CommentService) Pages(ctx context.Context, postID string) ([]feed.CommentPage, error) {
	if !s.cache.CommentsStale(postID) {
		return s.cache.CommentPages(postID), nil
	}
	return s.List(ctx, postID)
}

// Start refetches comments of any post whose comments get invalidated.
// The returned function stops listening and waits for refetches in flight.
func (s *CommentService) Start(ctx context.Context) func() {
	dispose := s.cache.Subscribe(func(ev feed.Event) {
		if ev.Kind == feed.CommentsInvalidated {
			s.refresh(ctx, ev.PostID)
		}
	})
	return func() {
		dispose()
		s.mu.Lock()
		for _, cancel := range s.refreshes {
			cancel()
		}
		s.mu.Unlock()
		s.wg.Wait()
	}
}

func (s *CommentService) refresh(parent context.Context, postID string) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if prev, ok := s.refreshes[postID]; ok {
		prev()
	}
	s.refreshes[postID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			if ctx.Err() == nil {
				delete(s.refreshes, postID)
			}
			s.mu.Unlock()
			cancel()
		}()

		if _, err := s.List(ctx, postID); err != nil && ctx.Err() == nil {
			s.logger.Warn("Comment refresh failed", zap.String("post_id", postID), zap.Error(err))
		}
	}()
}

func (s *CommentService) fetch(ctx context.Context, postID, cursor string) (feed.CommentPage, error) {
	raw, err := s.store.QueryComments(ctx, postID, s.pageSize, cursor)
	if err != nil {
		return feed.CommentPage{}, err
	}
	page := feed.CommentPage{Comments: raw.Comments, HasMore: len(raw.Comments) == s.pageSize}
	if page.HasMore {
		page.Cursor = raw.NextCursor
	}
	return page, nil
}
