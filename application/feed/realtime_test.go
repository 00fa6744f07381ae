package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	"locallens/infrastructure/persistence/memory"
	"locallens/tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticUser string

func (u staticUser) CurrentUserID() string { return string(u) }

type updateRecorder struct {
	mu      sync.Mutex
	batches [][]entities.Post
}

func (r *updateRecorder) record(posts []entities.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, posts)
}

func (r *updateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *updateRecorder) last() []entities.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func newMerger(store *memory.Store, cache *Cache, capacity int) *RealtimeMerger {
	return NewRealtimeMerger(store, store, cache, staticUser("voter-1"), capacity, 4, fixedClock, zap.NewNop())
}

func TestRealtimeMerger_MergesFirstPushIntoCache(t *testing.T) {
	store := memory.NewStore()
	for _, p := range fixtures.NearbyPosts(3) {
		store.PutPost(p)
	}
	for _, p := range fixtures.FarPosts(2, 0) {
		store.PutPost(p)
	}
	store.PutVote(entities.Vote{VoterID: "voter-1", PostID: "near-01", Direction: valueobjects.VoteUp})

	cache := NewCache()
	sc := testContext(t)
	rec := &updateRecorder{}

	unsub, err := newMerger(store, cache, 50).Subscribe(context.Background(), sc, rec.record)
	require.NoError(t, err)
	defer unsub()

	pages := cache.Pages(sc.Key())
	require.Len(t, pages, 1)
	assert.False(t, pages[0].HasMore)
	require.Len(t, pages[0].Posts, 3)
	assert.Equal(t, valueobjects.VoteUp, pages[0].Posts[1].UserVote)
	assert.Equal(t, valueobjects.VoteNone, pages[0].Posts[0].UserVote)

	require.Equal(t, 1, rec.count())
	assert.Len(t, rec.last(), 3)
}

func TestRealtimeMerger_IdenticalPushIsNoop(t *testing.T) {
	store := memory.NewStore()
	for _, p := range fixtures.NearbyPosts(2) {
		store.PutPost(p)
	}
	cache := NewCache()
	sc := testContext(t)
	rec := &updateRecorder{}

	unsub, err := newMerger(store, cache, 50).Subscribe(context.Background(), sc, rec.record)
	require.NoError(t, err)
	defer unsub()

	version := cache.Version(sc.Key())
	store.Broadcast()
	store.Broadcast()

	assert.Equal(t, version, cache.Version(sc.Key()))
	assert.Equal(t, 1, rec.count())
}

func TestRealtimeMerger_CollapsesLoadedChain(t *testing.T) {
	store := memory.NewStore()
	for _, p := range fixtures.NearbyPosts(25) {
		store.PutPost(p)
	}
	cache := NewCache()
	sc := testContext(t)
	cache.SetPages(sc, []CachePage{
		{Posts: fixtures.NearbyPosts(20), HasMore: true, Cursor: "c1"},
		{Posts: fixtures.NearbyPosts(25)[20:], HasMore: false},
	})

	unsub, err := newMerger(store, cache, 50).Subscribe(context.Background(), sc, func([]entities.Post) {})
	require.NoError(t, err)
	defer unsub()

	pages := cache.Pages(sc.Key())
	require.Len(t, pages, 1)
	assert.Len(t, pages[0].Posts, 25)
	assert.False(t, pages[0].HasMore)
	assert.Empty(t, pages[0].Cursor)
}

func TestRealtimeMerger_RespectsCandidateCap(t *testing.T) {
	store := memory.NewStore()
	for _, p := range fixtures.NearbyPosts(60) {
		store.PutPost(p)
	}
	cache := NewCache()
	sc := testContext(t)

	unsub, err := newMerger(store, cache, 50).Subscribe(context.Background(), sc, func([]entities.Post) {})
	require.NoError(t, err)
	defer unsub()

	assert.Len(t, cache.Posts(sc.Key()), 50)
}

func TestRealtimeMerger_DeliversStoreChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := NewCache()
	sc := testContext(t)
	rec := &updateRecorder{}

	unsub, err := newMerger(store, cache, 50).Subscribe(ctx, sc, rec.record)
	require.NoError(t, err)
	defer unsub()
	assert.Empty(t, cache.Posts(sc.Key()))

	require.NoError(t, store.CreatePost(ctx, fixtures.NewPostBuilder().WithID("fresh").Build()))
	require.NoError(t, store.CreatePost(ctx, fixtures.NewPostBuilder().WithID("distant").NorthOfCenter(20000).Build()))

	posts := cache.Posts(sc.Key())
	require.Len(t, posts, 1)
	assert.Equal(t, "fresh", posts[0].ID)
	// The distant post changes nothing inside the radius.
	assert.Equal(t, 2, rec.count())
}

func TestRealtimeMerger_SharesOneSubscriptionPerContext(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := NewCache()
	sc := testContext(t)
	merger := newMerger(store, cache, 50)
	first, second := &updateRecorder{}, &updateRecorder{}

	unsubFirst, err := merger.Subscribe(ctx, sc, first.record)
	require.NoError(t, err)
	unsubSecond, err := merger.Subscribe(ctx, sc, second.record)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Calls(memory.OpWatchActivePosts))
	assert.Equal(t, 1, merger.ActiveFeeds())

	require.NoError(t, store.CreatePost(ctx, fixtures.NewPostBuilder().WithID("one").Build()))
	assert.Equal(t, 1, second.count())

	unsubFirst()
	unsubFirst()
	assert.Equal(t, 1, merger.ActiveFeeds())

	require.NoError(t, store.CreatePost(ctx, fixtures.NewPostBuilder().WithID("two").Build()))
	assert.Equal(t, 2, first.count())
	assert.Equal(t, 2, second.count())

	unsubSecond()
	assert.Equal(t, 0, merger.ActiveFeeds())
}

func TestRealtimeMerger_NoUpdatesAfterUnsubscribe(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := NewCache()
	sc := testContext(t)
	rec := &updateRecorder{}

	unsub, err := newMerger(store, cache, 50).Subscribe(ctx, sc, rec.record)
	require.NoError(t, err)
	unsub()
	version := cache.Version(sc.Key())

	require.NoError(t, store.CreatePost(ctx, fixtures.NewPostBuilder().WithID("late").Build()))

	assert.Equal(t, version, cache.Version(sc.Key()))
	assert.Equal(t, 1, rec.count())
}

func TestRealtimeMerger_VoteLookupFailureKeepsCachedVote(t *testing.T) {
	store := memory.NewStore()
	store.PutPost(fixtures.NewPostBuilder().WithID("p1").Build())
	store.FailOn(memory.OpGetUserVote, errors.New("unavailable"))
	cache := NewCache()
	sc := testContext(t)
	cache.ApplyVote("p1", valueobjects.Toggle(valueobjects.VoteNone, valueobjects.VoteDown))

	unsub, err := newMerger(store, cache, 50).Subscribe(context.Background(), sc, func([]entities.Post) {})
	require.NoError(t, err)
	defer unsub()

	posts := cache.Posts(sc.Key())
	require.Len(t, posts, 1)
	assert.Equal(t, valueobjects.VoteDown, posts[0].UserVote)
}

func TestRealtimeMerger_WatchErrorIsReturned(t *testing.T) {
	store := memory.NewStore()
	errDenied := errors.New("permission denied")
	store.FailOn(memory.OpWatchActivePosts, errDenied)
	merger := newMerger(store, NewCache(), 50)

	_, err := merger.Subscribe(context.Background(), testContext(t), func([]entities.Post) {})

	assert.Same(t, errDenied, err)
	assert.Equal(t, 0, merger.ActiveFeeds())
}
