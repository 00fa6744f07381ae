package di

import (
	"context"
	"testing"

	"locallens/application/dto"
	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	"locallens/infrastructure/config"
	"locallens/tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.StoreBackend = "memory"
	cfg.OfflineStorage = "memory"
	cfg.LogLevel = "error"
	cfg.Environment = "test"
	return cfg
}

func TestInitializeContainer_OfflineNoteReachesTheFeed(t *testing.T) {
	ctx := context.Background()

	// Arrange
	c, cleanup, err := InitializeContainer(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	stop := c.Start(ctx)
	t.Cleanup(stop)

	c.Session.SetUser(entities.User{ID: "user-1", DisplayName: "Ann"})
	require.NoError(t, c.Session.SetLocation(fixtures.Center.Latitude, fixtures.Center.Longitude))
	c.Connectivity.SetOnline(ctx, false)

	// Act: write while offline, then reconnect.
	resp, err := c.Submit.Submit(ctx, dto.CreateNoteRequest{
		Content:   "coffee cart on the corner",
		Latitude:  fixtures.Center.Latitude,
		Longitude: fixtures.Center.Longitude,
	})
	require.NoError(t, err)
	require.True(t, resp.Queued)

	c.Connectivity.SetOnline(ctx, true)
	c.Queue.Wait()

	// Assert
	pending, err := c.Queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	pages, err := c.Feed.Load(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Len(t, pages[0].Posts, 1)
	assert.Equal(t, "coffee cart on the corner", pages[0].Posts[0].Content)
	assert.Equal(t, "dr5regw", pages[0].Posts[0].CellID)
}

func TestInitializeContainer_VoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, cleanup, err := InitializeContainer(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	c.Session.SetUser(entities.User{ID: "user-1"})
	require.NoError(t, c.Session.SetLocation(fixtures.Center.Latitude, fixtures.Center.Longitude))
	post, err := c.Notes.Create(ctx, dto.CreateNoteRequest{
		Content:   "hello",
		Latitude:  fixtures.Center.Latitude,
		Longitude: fixtures.Center.Longitude,
	})
	require.NoError(t, err)
	_, err = c.Feed.Load(ctx)
	require.NoError(t, err)

	pending, err := c.Mutations.ToggleVote(ctx, post.ID, valueobjects.VoteUp)
	require.NoError(t, err)
	require.NoError(t, pending.Wait(ctx))
	c.Mutations.Wait()

	stored, err := c.Store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Upvotes)
	cached, ok := c.Cache.Post(post.ID)
	require.True(t, ok)
	assert.Equal(t, 1, cached.Upvotes)
	assert.Equal(t, valueobjects.VoteUp, cached.UserVote)
}

func TestInitializeContainer_UserSwitchDropsVotes(t *testing.T) {
	ctx := context.Background()
	c, cleanup, err := InitializeContainer(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	stop := c.Start(ctx)
	t.Cleanup(stop)

	c.Session.SetUser(entities.User{ID: "user-1"})
	require.NoError(t, c.Session.SetLocation(fixtures.Center.Latitude, fixtures.Center.Longitude))
	post, err := c.Notes.Create(ctx, dto.CreateNoteRequest{
		Content:   "hello",
		Latitude:  fixtures.Center.Latitude,
		Longitude: fixtures.Center.Longitude,
	})
	require.NoError(t, err)
	_, err = c.Feed.Load(ctx)
	require.NoError(t, err)

	pending, err := c.Mutations.ToggleVote(ctx, post.ID, valueobjects.VoteUp)
	require.NoError(t, err)
	require.NoError(t, pending.Wait(ctx))
	c.Mutations.Wait()

	// Act
	c.Session.SetUser(entities.User{ID: "user-2"})

	// Assert
	cached, ok := c.Cache.Post(post.ID)
	require.True(t, ok)
	assert.Equal(t, valueobjects.VoteNone, cached.UserVote)

	pending, err = c.Mutations.ToggleVote(ctx, post.ID, valueobjects.VoteUp)
	require.NoError(t, err)
	require.NoError(t, pending.Wait(ctx))
	c.Mutations.Wait()

	stored, err := c.Store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Upvotes)
}

func TestInitializeContainer_RejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "cassandra"

	_, _, err := InitializeContainer(context.Background(), cfg)

	assert.Error(t, err)
}
