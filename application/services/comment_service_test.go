package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"locallens/application/feed"
	"locallens/domain/core/entities"
	"locallens/infrastructure/persistence/memory"
	"locallens/tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedComments(store *memory.Store, postID string, n int) {
	for i := 0; i < n; i++ {
		store.PutComment(entities.Comment{
			ID:        fmt.Sprintf("c%02d", i),
			PostID:    postID,
			AuthorID:  "someone",
			Content:   "hi",
			CreatedAt: fixtures.BaseTime.Add(-time.Duration(i) * time.Minute),
		})
	}
}

func TestCommentService_ListAndLoadMore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedComments(store, "p1", 25)
	seedComments(store, "p2", 3)
	cache := feed.NewCache()
	svc := NewCommentService(store, cache, 20, zap.NewNop())

	pages, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Len(t, pages[0].Comments, 20)
	assert.Equal(t, "c00", pages[0].Comments[0].ID, "newest first")
	assert.True(t, pages[0].HasMore)

	pages, err = svc.LoadMore(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Len(t, pages[1].Comments, 5)
	assert.False(t, pages[1].HasMore)

	pages, err = svc.List(ctx, "p2")
	require.NoError(t, err)
	assert.Len(t, pages[0].Comments, 3)
	assert.False(t, pages[0].HasMore)
	assert.Empty(t, pages[0].Cursor)
}

func TestCommentService_PagesUsesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedComments(store, "p1", 2)
	svc := NewCommentService(store, feed.NewCache(), 20, zap.NewNop())

	_, err := svc.Pages(ctx, "p1")
	require.NoError(t, err)
	_, err = svc.Pages(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Calls(memory.OpQueryComments))
}

func TestCommentService_RefetchesAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedComments(store, "p1", 1)
	cache := feed.NewCache()
	svc := NewCommentService(store, cache, 20, zap.NewNop())
	stop := svc.Start(ctx)
	defer stop()

	_, err := svc.List(ctx, "p1")
	require.NoError(t, err)

	store.PutComment(entities.Comment{ID: "fresh", PostID: "p1", CreatedAt: fixtures.BaseTime.Add(time.Minute)})
	cache.InvalidateComments("p1")

	require.Eventually(t, func() bool {
		pages := cache.CommentPages("p1")
		return len(pages) == 1 && len(pages[0].Comments) == 2 && !cache.CommentsStale("p1")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fresh", cache.CommentPages("p1")[0].Comments[0].ID)
}
