package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"locallens/domain/core/valueobjects"
	"locallens/infrastructure/persistence/memory"
	"locallens/tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fixedClock() time.Time { return fixtures.BaseTime }

func testContext(t *testing.T) valueobjects.SearchContext {
	t.Helper()
	sc, err := valueobjects.NewSearchContext(fixtures.Center.Latitude, fixtures.Center.Longitude, 5)
	require.NoError(t, err)
	return sc
}

func TestQueryEngine_FetchPage_HasMoreCountsRawResults(t *testing.T) {
	// Arrange: one nearby post and 19 far ones fill a raw page of 20.
	ctx := context.Background()
	store := memory.NewStore()
	store.PutPost(fixtures.NearbyPosts(1)[0])
	for _, p := range fixtures.FarPosts(19, 1) {
		store.PutPost(p)
	}
	engine := NewQueryEngine(store, 20, fixedClock, zap.NewNop())

	// Act
	page, err := engine.FetchPage(ctx, testContext(t), "")

	// Assert
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "near-00", page.Posts[0].ID)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)

	next, err := engine.FetchPage(ctx, testContext(t), page.NextCursor)
	require.NoError(t, err)
	assert.Empty(t, next.Posts)
	assert.False(t, next.HasMore)
	assert.Empty(t, next.NextCursor)
}

func TestQueryEngine_FetchPage_PaginatesInFeedOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, p := range fixtures.NearbyPosts(25) {
		store.PutPost(p)
	}
	engine := NewQueryEngine(store, 20, fixedClock, zap.NewNop())

	first, err := engine.FetchPage(ctx, testContext(t), "")
	require.NoError(t, err)
	require.Len(t, first.Posts, 20)
	assert.Equal(t, "near-00", first.Posts[0].ID)
	assert.Equal(t, "near-19", first.Posts[19].ID)
	assert.True(t, first.HasMore)

	second, err := engine.FetchPage(ctx, testContext(t), first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Posts, 5)
	assert.Equal(t, "near-20", second.Posts[0].ID)
	assert.False(t, second.HasMore)
}

func TestQueryEngine_FetchPage_SkipsExpiredAndInactive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutPost(fixtures.NewPostBuilder().WithID("live").Build())
	store.PutPost(fixtures.NewPostBuilder().WithID("expired").ExpiringIn(-time.Minute).Build())
	store.PutPost(fixtures.NewPostBuilder().WithID("deleted").Inactive().Build())
	engine := NewQueryEngine(store, 20, fixedClock, zap.NewNop())

	page, err := engine.FetchPage(ctx, testContext(t), "")

	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "live", page.Posts[0].ID)
	assert.False(t, page.HasMore)
}

func TestQueryEngine_FetchPage_SameExpiryNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutPost(fixtures.NewPostBuilder().WithID("older").CreatedAgo(2 * time.Hour).ExpiringIn(time.Hour).Build())
	store.PutPost(fixtures.NewPostBuilder().WithID("newer").CreatedAgo(time.Hour).ExpiringIn(time.Hour).Build())
	engine := NewQueryEngine(store, 20, fixedClock, zap.NewNop())

	page, err := engine.FetchPage(ctx, testContext(t), "")

	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "newer", page.Posts[0].ID)
	assert.Equal(t, "older", page.Posts[1].ID)
}

func TestQueryEngine_FetchPage_PropagatesStoreErrorUnchanged(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	errDenied := errors.New("permission denied")
	store.FailOn(memory.OpQueryActivePosts, errDenied)
	engine := NewQueryEngine(store, 20, fixedClock, zap.NewNop())

	_, err := engine.FetchPage(ctx, testContext(t), "")

	assert.Same(t, errDenied, err)
	assert.Equal(t, 1, store.Calls(memory.OpQueryActivePosts))
}

func TestQueryEngine_FetchPage_RequiresContext(t *testing.T) {
	engine := NewQueryEngine(memory.NewStore(), 20, fixedClock, zap.NewNop())

	_, err := engine.FetchPage(context.Background(), valueobjects.SearchContext{}, "")

	assert.Error(t, err)
}
