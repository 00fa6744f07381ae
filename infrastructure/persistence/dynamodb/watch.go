package dynamodb

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"locallens/application/ports"
	"locallens/domain/core/entities"

	"go.uber.org/zap"
)

// WatchActivePosts re-queries the first q.Limit active posts on every tick
// and on every Notify, and calls onSnapshot when the result differs from
// the last one delivered. The first snapshot is always delivered.
func (s *Store) WatchActivePosts(ctx context.Context, q ports.WatchQuery, onSnapshot func([]entities.Post)) (ports.Unsubscribe, error) {
	if q.Now == nil {
		q.Now = time.Now
	}

	signal := make(chan struct{}, 1)
	signal <- struct{}{}

	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watches[id] = signal
	s.mu.Unlock()

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go s.watchLoop(watchCtx, q, signal, onSnapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			s.mu.Lock()
			delete(s.watches, id)
			s.mu.Unlock()
		})
	}, nil
}

// Notify asks every live watch to re-query now. The change feed calls it.
func (s *Store) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watches {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) watchLoop(ctx context.Context, q ports.WatchQuery, signal <-chan struct{}, onSnapshot func([]entities.Post)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last uint64
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-signal:
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		page, err := s.QueryActivePosts(ctx, ports.PostQuery{Now: q.Now(), Limit: q.Limit})
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Watch query failed", zap.Error(err))
			}
			continue
		}

		sum := snapshotSum(page.Posts)
		if delivered && sum == last {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		last, delivered = sum, true
		onSnapshot(page.Posts)
	}
}

func snapshotSum(posts []entities.Post) uint64 {
	h := fnv.New64a()
	for _, p := range posts {
		fmt.Fprintf(h, "%s|%d|%d|%d|%t|%d;", p.ID, p.Upvotes, p.Downvotes, p.CommentsCount, p.IsActive, p.ExpiresAt.UnixNano())
	}
	return h.Sum64()
}
