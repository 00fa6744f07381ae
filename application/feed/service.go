package feed

import (
	"context"
	"sync"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	pkgerrors "locallens/pkg/errors"

	"go.uber.org/zap"
)

// ContextSource supplies the active search context and the signed-in user.
type ContextSource interface {
	UserIdentity
	SearchContext() (valueobjects.SearchContext, bool)
}

// Service drives the feed of the active search context: first page loads,
// "load more", live updates, and refetching after invalidation.
type Service struct {
	engine   *QueryEngine
	merger   *RealtimeMerger
	cache    *Cache
	enricher *voteEnricher
	source   ContextSource
	logger   *zap.Logger

	mu        sync.Mutex
	refreshes map[string]context.CancelFunc
	wg        sync.WaitGroup
}

// NewService wires the feed service.
func NewService(
	engine *QueryEngine,
	merger *RealtimeMerger,
	cache *Cache,
	votes ports.VoteReader,
	source ContextSource,
	voteLookupParallel int,
	logger *zap.Logger,
) *Service {
	return &Service{
		engine:    engine,
		merger:    merger,
		cache:     cache,
		enricher:  newVoteEnricher(votes, voteLookupParallel, logger),
		source:    source,
		logger:    logger,
		refreshes: make(map[string]context.CancelFunc),
	}
}

func (s *Service) activeContext() (valueobjects.SearchContext, error) {
	sc, ok := s.source.SearchContext()
	if !ok {
		return valueobjects.SearchContext{}, pkgerrors.NewValidationError("location is not known yet")
	}
	return sc, nil
}

// Load fetches the first page of the active context and replaces its chain.
func (s *Service) Load(ctx context.Context) ([]CachePage, error) {
	sc, err := s.activeContext()
	if err != nil {
		return nil, err
	}
	if err := s.loadFirstPage(ctx, sc); err != nil {
		return nil, err
	}
	return s.cache.Pages(sc.Key()), nil
}

// LoadMore appends the next page when the last cached page reports more.
func (s *Service) LoadMore(ctx context.Context) ([]CachePage, error) {
	sc, err := s.activeContext()
	if err != nil {
		return nil, err
	}
	pages := s.cache.Pages(sc.Key())
	if len(pages) == 0 {
		return s.Load(ctx)
	}
	last := pages[len(pages)-1]
	if !last.HasMore || last.Cursor == "" {
		return pages, nil
	}

	page, err := s.engine.FetchPage(ctx, sc, last.Cursor)
	if err != nil {
		return nil, err
	}
	s.cache.AppendPage(sc, s.toCachePage(ctx, page))
	return s.cache.Pages(sc.Key()), nil
}

// Pages returns the cached chain of the active context, loading it on first use.
func (s *Service) Pages(ctx context.Context) ([]CachePage, error) {
	sc, err := s.activeContext()
	if err != nil {
		return nil, err
	}
	if pages := s.cache.Pages(sc.Key()); pages != nil && !s.cache.IsStale(sc.Key()) {
		return pages, nil
	}
	return s.Load(ctx)
}

// Watch opens the live subscription for the active context.
func (s *Service) Watch(ctx context.Context, onUpdate func([]entities.Post)) (ports.Unsubscribe, error) {
	sc, err := s.activeContext()
	if err != nil {
		return nil, err
	}
	return s.merger.Subscribe(ctx, sc, onUpdate)
}

// Start refetches the first page of any context that gets invalidated.
// The returned function stops listening and waits for refetches in flight.
func (s *Service) Start(ctx context.Context) func() {
	dispose := s.cache.Subscribe(func(ev Event) {
		if ev.Kind == FeedInvalidated {
			s.refresh(ctx, ev.Context)
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

// refresh runs one refetch per context; a newer invalidation cancels the older fetch.
func (s *Service) refresh(parent context.Context, sc valueobjects.SearchContext) {
	key := sc.Key()
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if prev, ok := s.refreshes[key]; ok {
		prev()
	}
	s.refreshes[key] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			if ctx.Err() == nil {
				delete(s.refreshes, key)
			}
			s.mu.Unlock()
			cancel()
		}()

		if err := s.loadFirstPage(ctx, sc); err != nil && ctx.Err() == nil {
			s.logger.Warn("Feed refresh failed", zap.String("context", key), zap.Error(err))
		}
	}()
}

func (s *Service) loadFirstPage(ctx context.Context, sc valueobjects.SearchContext) error {
	page, err := s.engine.FetchPage(ctx, sc, "")
	if err != nil {
		return err
	}
	cached := s.toCachePage(ctx, page)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.cache.SetPages(sc, []CachePage{cached})
	return nil
}

func (s *Service) toCachePage(ctx context.Context, page Page) CachePage {
	posts := s.enricher.enrich(ctx, s.source.CurrentUserID(), page.Posts, s.cache.UserVote)
	return CachePage{Posts: posts, HasMore: page.HasMore, Cursor: page.NextCursor}
}
