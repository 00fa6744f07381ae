package feed

import (
	"context"
	"testing"
	"time"

	"locallens/application/session"
	"locallens/domain/core/entities"
	"locallens/infrastructure/persistence/memory"
	"locallens/tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, store *memory.Store) (*Service, *Cache, *session.Session) {
	t.Helper()
	sess := session.New(5)
	require.NoError(t, sess.SetLocation(fixtures.Center.Latitude, fixtures.Center.Longitude))
	sess.SetUser(entities.User{ID: "voter-1", DisplayName: "Voter"})

	cache := NewCache()
	logger := zap.NewNop()
	engine := NewQueryEngine(store, 20, fixedClock, logger)
	merger := NewRealtimeMerger(store, store, cache, sess, 50, 4, fixedClock, logger)
	return NewService(engine, merger, cache, store, sess, 4, logger), cache, sess
}

func TestService_LoadAndLoadMore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, p := range fixtures.NearbyPosts(25) {
		store.PutPost(p)
	}
	svc, _, _ := newTestService(t, store)

	pages, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Len(t, pages[0].Posts, 20)
	assert.True(t, pages[0].HasMore)

	pages, err = svc.LoadMore(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Len(t, pages[1].Posts, 5)
	assert.False(t, pages[1].HasMore)

	// The chain is exhausted, so no further query runs.
	calls := store.Calls(memory.OpQueryActivePosts)
	pages, err = svc.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, calls, store.Calls(memory.OpQueryActivePosts))
}

func TestService_LoadEnrichesVotes(t *testing.T) {
	store := memory.NewStore()
	store.PutPost(fixtures.NewPostBuilder().WithID("p1").WithCounters(0, 1, 0).Build())
	store.PutVote(entities.Vote{VoterID: "voter-1", PostID: "p1", Direction: "down"})
	svc, cache, _ := newTestService(t, store)

	pages, err := svc.Load(context.Background())

	require.NoError(t, err)
	require.Len(t, pages[0].Posts, 1)
	assert.Equal(t, "down", pages[0].Posts[0].UserVote.String())
	vote, known := cache.UserVote("p1")
	assert.True(t, known)
	assert.Equal(t, "down", string(vote))
}

func TestService_RequiresLocation(t *testing.T) {
	store := memory.NewStore()
	cache := NewCache()
	sess := session.New(5)
	engine := NewQueryEngine(store, 20, fixedClock, zap.NewNop())
	merger := NewRealtimeMerger(store, store, cache, sess, 50, 4, fixedClock, zap.NewNop())
	svc := NewService(engine, merger, cache, store, sess, 4, zap.NewNop())

	_, err := svc.Load(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 0, store.Calls(memory.OpQueryActivePosts))
}

func TestService_PagesUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutPost(fixtures.NewPostBuilder().WithID("p1").Build())
	svc, _, _ := newTestService(t, store)

	_, err := svc.Pages(ctx)
	require.NoError(t, err)
	_, err = svc.Pages(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Calls(memory.OpQueryActivePosts))
}

func TestService_ClearVotesRefetchesForNewUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutPost(fixtures.NewPostBuilder().WithID("p1").WithCounters(1, 1, 0).Build())
	store.PutVote(entities.Vote{VoterID: "voter-1", PostID: "p1", Direction: "down"})
	store.PutVote(entities.Vote{VoterID: "voter-2", PostID: "p1", Direction: "up"})
	svc, cache, sess := newTestService(t, store)
	sc, ok := sess.SearchContext()
	require.True(t, ok)

	_, err := svc.Load(ctx)
	require.NoError(t, err)

	// Act
	sess.SetUser(entities.User{ID: "voter-2", DisplayName: "Other"})
	cache.ClearVotes()

	// Assert
	_, known := cache.UserVote("p1")
	assert.False(t, known)
	assert.True(t, cache.IsStale(sc.Key()))
	posts := cache.Posts(sc.Key())
	require.Len(t, posts, 1)
	assert.Equal(t, "none", posts[0].UserVote.String())

	pages, err := svc.Pages(ctx)
	require.NoError(t, err)
	require.Len(t, pages[0].Posts, 1)
	assert.Equal(t, "up", pages[0].Posts[0].UserVote.String())
}

func TestService_StartRefetchesInvalidatedContext(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutPost(fixtures.NewPostBuilder().WithID("p1").Build())
	svc, cache, sess := newTestService(t, store)

	_, err := svc.Load(ctx)
	require.NoError(t, err)

	stop := svc.Start(ctx)
	defer stop()

	store.PutPost(fixtures.NewPostBuilder().WithID("p2").CreatedAgo(time.Minute).Build())
	sc, ok := sess.SearchContext()
	require.True(t, ok)
	cache.Invalidate(sc)

	require.Eventually(t, func() bool {
		return len(cache.Posts(sc.Key())) == 2 && !cache.IsStale(sc.Key())
	}, time.Second, 10*time.Millisecond)
}

func TestService_WatchUsesActiveContext(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, cache, sess := newTestService(t, store)
	rec := &updateRecorder{}

	unsub, err := svc.Watch(ctx, rec.record)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, store.CreatePost(ctx, fixtures.NewPostBuilder().WithID("live").Build()))

	sc, _ := sess.SearchContext()
	posts := cache.Posts(sc.Key())
	require.Len(t, posts, 1)
	assert.Equal(t, "live", posts[0].ID)
	assert.Equal(t, 2, rec.count())
}
