package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"

	"go.uber.org/zap"
)

// UserIdentity supplies the id of the signed-in user, or "".
type UserIdentity interface {
	CurrentUserID() string
}

// RealtimeMerger keeps one live store subscription per SearchContext and
// folds every push into the cached first page.
type RealtimeMerger struct {
	watcher  ports.PostWatcher
	enricher *voteEnricher
	cache    *Cache
	identity UserIdentity
	cap      int
	now      func() time.Time
	logger   *zap.Logger

	mu    sync.Mutex
	feeds map[string]*liveFeed
}

type liveFeed struct {
	key       string
	sc        valueobjects.SearchContext
	ctx       context.Context
	cancel    context.CancelFunc
	stop      ports.Unsubscribe
	closed    atomic.Bool
	mergeMu   sync.Mutex
	mu        sync.Mutex
	listeners map[int]func([]entities.Post)
	nextID    int
}

// NewRealtimeMerger creates a merger capped at candidateCap posts per push.
func NewRealtimeMerger(
	watcher ports.PostWatcher,
	votes ports.VoteReader,
	cache *Cache,
	identity UserIdentity,
	candidateCap int,
	voteLookupParallel int,
	now func() time.Time,
	logger *zap.Logger,
) *RealtimeMerger {
	if now == nil {
		now = time.Now
	}
	return &RealtimeMerger{
		watcher:  watcher,
		enricher: newVoteEnricher(votes, voteLookupParallel, logger),
		cache:    cache,
		identity: identity,
		cap:      candidateCap,
		now:      now,
		logger:   logger,
		feeds:    make(map[string]*liveFeed),
	}
}

// Subscribe delivers every merged first page for sc to onUpdate until the
// returned function is called. Subscribers on the same context share one
// store subscription.
func (m *RealtimeMerger) Subscribe(
	ctx context.Context,
	sc valueobjects.SearchContext,
	onUpdate func([]entities.Post),
) (ports.Unsubscribe, error) {
	key := sc.Key()

	m.mu.Lock()
	feed, exists := m.feeds[key]
	if !exists {
		feedCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		feed = &liveFeed{
			key:       key,
			sc:        sc,
			ctx:       feedCtx,
			cancel:    cancel,
			listeners: make(map[int]func([]entities.Post)),
		}
		m.feeds[key] = feed
	}
	id := feed.addListener(onUpdate)
	m.mu.Unlock()

	if !exists {
		stop, err := m.watcher.WatchActivePosts(feed.ctx, ports.WatchQuery{Limit: m.cap, Now: m.now}, func(posts []entities.Post) {
			m.merge(feed, posts)
		})
		if err != nil {
			m.closeFeed(feed)
			return nil, err
		}
		feed.mu.Lock()
		feed.stop = stop
		feed.mu.Unlock()
		if feed.closed.Load() {
			stop()
		}
		m.logger.Info("Opened live feed", zap.String("context", key), zap.Int("cap", m.cap))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			remaining := feed.removeListener(id)
			if remaining == 0 && m.feeds[key] == feed {
				delete(m.feeds, key)
			}
			m.mu.Unlock()
			if remaining == 0 {
				m.closeFeed(feed)
			}
		})
	}, nil
}

// ActiveFeeds returns the number of open store subscriptions.
func (m *RealtimeMerger) ActiveFeeds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.feeds)
}

// Close stops every live feed.
func (m *RealtimeMerger) Close() {
	m.mu.Lock()
	feeds := make([]*liveFeed, 0, len(m.feeds))
	for _, f := range m.feeds {
		feeds = append(feeds, f)
	}
	m.mu.Unlock()

	for _, f := range feeds {
		m.closeFeed(f)
	}
}

func (m *RealtimeMerger) merge(feed *liveFeed, posts []entities.Post) {
	feed.mergeMu.Lock()
	if feed.closed.Load() {
		feed.mergeMu.Unlock()
		return
	}

	nearby := filterWithin(feed.sc, posts)
	enriched := m.enricher.enrich(feed.ctx, m.identity.CurrentUserID(), nearby, m.cache.UserVote)

	// Unsubscribe may have happened during the vote lookups.
	if feed.closed.Load() {
		feed.mergeMu.Unlock()
		return
	}
	changed := m.cache.ReplaceFirstPage(feed.sc, CachePage{Posts: enriched, HasMore: false})
	feed.mergeMu.Unlock()

	if !changed {
		m.logger.Debug("Live push unchanged", zap.String("context", feed.key))
		return
	}

	for _, fn := range feed.snapshotListeners() {
		if feed.closed.Load() {
			return
		}
		out := make([]entities.Post, len(enriched))
		for i, p := range enriched {
			out[i] = p.Clone()
		}
		fn(out)
	}
}

func (m *RealtimeMerger) closeFeed(feed *liveFeed) {
	if !feed.closed.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	if m.feeds[feed.key] == feed {
		delete(m.feeds, feed.key)
	}
	m.mu.Unlock()

	feed.cancel()
	feed.mu.Lock()
	stop := feed.stop
	feed.mu.Unlock()
	if stop != nil {
		stop()
	}

	// Wait out a merge that passed the closed check before we flipped it.
	feed.mergeMu.Lock()
	feed.mergeMu.Unlock()

	m.logger.Info("Closed live feed", zap.String("context", feed.key))
}

func (f *liveFeed) addListener(fn func([]entities.Post)) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return id
}

func (f *liveFeed) removeListener(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners, id)
	return len(f.listeners)
}

func (f *liveFeed) snapshotListeners() []func([]entities.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]func([]entities.Post), 0, len(f.listeners))
	for _, fn := range f.listeners {
		out = append(out, fn)
	}
	return out
}
