package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"locallens/application/dto"
	"locallens/application/feed"
	"locallens/application/session"
	"locallens/domain/config"
	"locallens/domain/core/entities"
	"locallens/domain/core/validators"
	"locallens/domain/events"
	"locallens/infrastructure/persistence/memory"
	pkgerrors "locallens/pkg/errors"
	"locallens/tests/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

type noteHarness struct {
	store     *memory.Store
	cache     *feed.Cache
	session   *session.Session
	publisher *recordingPublisher
	notes     *NoteService
}

func newNoteHarness(t *testing.T, pageSize int) *noteHarness {
	t.Helper()
	store := memory.NewStore()
	cache := feed.NewCache()
	sess := session.New(5)
	sess.SetUser(entities.User{ID: "author-1", DisplayName: "Ada"})
	require.NoError(t, sess.SetLocation(fixtures.Center.Latitude, fixtures.Center.Longitude))
	pub := &recordingPublisher{}

	notes := NewNoteService(store, store, cache, sess,
		validators.NewContentValidator(config.DefaultDomainConfig()), pub, pageSize, zap.NewNop())
	notes.now = func() time.Time { return fixtures.BaseTime }

	return &noteHarness{store: store, cache: cache, session: sess, publisher: pub, notes: notes}
}

func validNote() dto.CreateNoteRequest {
	return dto.CreateNoteRequest{
		Content:   "Street food truck is back",
		Latitude:  fixtures.Center.Latitude,
		Longitude: fixtures.Center.Longitude,
	}
}

func TestNoteService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stores, indexes and shows the note", func(t *testing.T) {
		// Arrange
		h := newNoteHarness(t, 20)
		req := validNote()
		req.Content = "  " + req.Content + "  "

		// Act
		post, err := h.notes.Create(ctx, req)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "Street food truck is back", post.Content)
		assert.Equal(t, "dr5regw", post.CellID)
		assert.Equal(t, []string{"d", "dr", "dr5", "dr5r", "dr5re", "dr5reg", "dr5regw"}, post.CellPrefixes)
		assert.Equal(t, fixtures.BaseTime.Add(7*24*time.Hour), post.ExpiresAt)
		assert.Equal(t, "Ada", post.AuthorName)
		assert.True(t, post.IsActive)

		stored, err := h.store.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, post.CellID, stored.CellID)

		user, err := h.store.GetUser(ctx, "author-1")
		require.NoError(t, err)
		assert.Equal(t, 1, user.NotesCount)

		sc, _ := h.session.SearchContext()
		cached := h.cache.Posts(sc.Key())
		require.Len(t, cached, 1)
		assert.Equal(t, post.ID, cached[0].ID)
		assert.Equal(t, []string{events.TypePostCreated}, h.publisher.types())
	})

	t.Run("honors the requested expiry", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		req := validNote()
		req.ExpiresInDays = 30

		post, err := h.notes.Create(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, fixtures.BaseTime.Add(30*24*time.Hour), post.ExpiresAt)
	})

	t.Run("accepts exactly the maximum length", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		req := validNote()
		req.Content = strings.Repeat("ü", 500)

		_, err := h.notes.Create(ctx, req)

		assert.NoError(t, err)
	})

	t.Run("notes outside the radius are not cached", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		req := validNote()
		req.Latitude += 0.5

		_, err := h.notes.Create(ctx, req)

		require.NoError(t, err)
		sc, _ := h.session.SearchContext()
		assert.Empty(t, h.cache.Posts(sc.Key()))
	})

	t.Run("store errors come back unchanged", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		errDenied := errors.New("permission denied")
		h.store.FailOn(memory.OpCreatePost, errDenied)

		_, err := h.notes.Create(ctx, validNote())

		assert.Same(t, errDenied, err)
		assert.Empty(t, h.publisher.types())
	})
}

func TestNoteService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*dto.CreateNoteRequest)
		want   error
	}{
		{name: "empty content", mutate: func(r *dto.CreateNoteRequest) { r.Content = " \n\t " }, want: pkgerrors.ErrContentRequired},
		{name: "content too long", mutate: func(r *dto.CreateNoteRequest) { r.Content = strings.Repeat("a", 501) }, want: pkgerrors.ErrContentTooLong},
		{name: "latitude out of range", mutate: func(r *dto.CreateNoteRequest) { r.Latitude = 90.5 }, want: pkgerrors.ErrInvalidCoordinate},
		{name: "longitude out of range", mutate: func(r *dto.CreateNoteRequest) { r.Longitude = -181 }, want: pkgerrors.ErrInvalidCoordinate},
		{name: "expiry too long", mutate: func(r *dto.CreateNoteRequest) { r.ExpiresInDays = 31 }, want: pkgerrors.ErrInvalidExpiry},
		{name: "negative expiry", mutate: func(r *dto.CreateNoteRequest) { r.ExpiresInDays = -1 }, want: pkgerrors.ErrInvalidExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newNoteHarness(t, 20)
			req := validNote()
			tt.mutate(&req)

			_, err := h.notes.Create(context.Background(), req)

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Equal(t, 0, h.store.Calls(memory.OpCreatePost))
		})
	}

	t.Run("bad image url", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		req := validNote()
		req.ImageURL = "not a url"

		_, err := h.notes.Create(context.Background(), req)

		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("no signed-in user", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		h.session.ClearUser()

		_, err := h.notes.Create(context.Background(), validNote())

		assert.ErrorIs(t, err, pkgerrors.ErrMissingAuthContext)
		assert.Equal(t, 0, h.store.Calls(memory.OpCreatePost))
	})
}

func TestNoteService_Deactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("author retires a post", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		post, err := h.notes.Create(ctx, validNote())
		require.NoError(t, err)

		require.NoError(t, h.notes.Deactivate(ctx, post.ID))

		stored, err := h.store.GetPost(ctx, post.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)
		sc, _ := h.session.SearchContext()
		assert.Empty(t, h.cache.Posts(sc.Key()))
		assert.Equal(t, []string{events.TypePostCreated, events.TypePostDeactivated}, h.publisher.types())
	})

	t.Run("other users are rejected", func(t *testing.T) {
		h := newNoteHarness(t, 20)
		h.store.PutPost(fixtures.NewPostBuilder().WithID("theirs").WithAuthor("someone-else").Build())

		err := h.notes.Deactivate(ctx, "theirs")

		assert.True(t, pkgerrors.IsForbidden(err))
		assert.Equal(t, 0, h.store.Calls(memory.OpDeactivatePost))
	})

	t.Run("missing post", func(t *testing.T) {
		h := newNoteHarness(t, 20)

		err := h.notes.Deactivate(ctx, "nope")

		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestNoteService_ListByAuthor(t *testing.T) {
	ctx := context.Background()
	h := newNoteHarness(t, 2)
	for i, id := range []string{"old", "mid", "new"} {
		h.store.PutPost(fixtures.NewPostBuilder().WithID(id).WithAuthor("author-1").
			CreatedAgo(time.Duration(3-i) * time.Hour).Build())
	}
	h.store.PutPost(fixtures.NewPostBuilder().WithID("other").WithAuthor("someone-else").Build())

	first, err := h.notes.ListByAuthor(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, first.Posts, 2)
	assert.Equal(t, "new", first.Posts[0].ID)
	assert.Equal(t, "mid", first.Posts[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := h.notes.ListByAuthor(ctx, "author-1", first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Posts, 1)
	assert.Equal(t, "old", second.Posts[0].ID)
	assert.Empty(t, second.NextCursor)
}
