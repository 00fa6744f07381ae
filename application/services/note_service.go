package services

import (
	"context"
	"time"

	"locallens/application/dto"
	"locallens/application/feed"
	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/domain/core/validators"
	"locallens/domain/core/valueobjects"
	"locallens/domain/events"
	"locallens/domain/geo"
	pkgerrors "locallens/pkg/errors"
	"locallens/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionContext is the slice of the session the services read.
type SessionContext interface {
	RequireUser() (entities.User, error)
	SearchContext() (valueobjects.SearchContext, bool)
}

// AuthorPage is one page of an author's posts, newest first.
type AuthorPage struct {
	Posts      []entities.Post `json:"posts"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// NoteService creates, lists and retires posts.
type NoteService struct {
	posts     ports.PostReader
	writer    ports.PostWriter
	cache     *feed.Cache
	session   SessionContext
	validator *validators.ContentValidator
	publisher ports.EventPublisher
	pageSize  int
	now       func() time.Time
	logger    *zap.Logger
}

// NewNoteService creates a new note service
func NewNoteService(
	posts ports.PostReader,
	writer ports.PostWriter,
	cache *feed.Cache,
	session SessionContext,
	validator *validators.ContentValidator,
	publisher ports.EventPublisher,
	pageSize int,
	logger *zap.Logger,
) *NoteService {
	return &NoteService{
		posts:     posts,
		writer:    writer,
		cache:     cache,
		session:   session,
		validator: validator,
		publisher: publisher,
		pageSize:  pageSize,
		now:       time.Now,
		logger:    logger,
	}
}

// Validate checks a note and returns it normalized: content trimmed and the
// expiry resolved to a concrete number of days.
func (s *NoteService) Validate(req dto.CreateNoteRequest) (dto.CreateNoteRequest, error) {
	content, err := s.validator.NoteContent(req.Content)
	if err != nil {
		return req, err
	}
	req.Content = content

	if err := geo.Validate(req.Latitude, req.Longitude); err != nil {
		return req, err
	}

	days, err := s.validator.ExpiryDays(req.ExpiresInDays)
	if err != nil {
		return req, err
	}
	req.ExpiresInDays = days

	if err := utils.ValidateStruct(req); err != nil {
		return req, err
	}
	return req, nil
}

// Create stores a post for the current user and shows it at the head of the
// active feed when it falls inside the radius.
func (s *NoteService) Create(ctx context.Context, req dto.CreateNoteRequest) (*entities.Post, error) {
	user, err := s.session.RequireUser()
	if err != nil {
		return nil, err
	}
	note, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	post, err := entities.NewPost(entities.NewPostParams{
		ID:           uuid.NewString(),
		Author:       user.AsAuthor(),
		Content:      note.Content,
		ImageURL:     note.ImageURL,
		Location:     geo.Point{Latitude: note.Latitude, Longitude: note.Longitude},
		CreatedAt:    s.now().UTC(),
		ExpiresAfter: time.Duration(note.ExpiresInDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	if err := s.writer.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("Note created",
		zap.String("post_id", post.ID),
		zap.String("author_id", post.AuthorID),
		zap.String("cell_id", post.CellID),
	)

	if sc, ok := s.session.SearchContext(); ok && sc.Contains(post.Location) {
		s.cache.InsertPost(sc, post)
	}
	s.publish(ctx, events.NewPostCreated(post.ID, post.AuthorID, post.CellID, post.CreatedAt))
	return &post, nil
}

// Deactivate soft-deletes a post the current user wrote.
func (s *NoteService) Deactivate(ctx context.Context, postID string) error {
	user, err := s.session.RequireUser()
	if err != nil {
		return err
	}
	if postID == "" {
		return pkgerrors.NewValidationError("post id is required")
	}

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != user.ID {
		return pkgerrors.NotAuthorized("deactivate this post")
	}

	if err := s.writer.DeactivatePost(ctx, postID); err != nil {
		return err
	}
	s.cache.RemovePost(postID)
	s.publish(ctx, events.NewPostDeactivated(postID, user.ID, s.now()))
	return nil
}

// ListByAuthor returns an author's posts newest first. An empty authorID
// means the current user.
func (s *NoteService) ListByAuthor(ctx context.Context, authorID, cursor string) (AuthorPage, error) {
	if authorID == "" {
		user, err := s.session.RequireUser()
		if err != nil {
			return AuthorPage{}, err
		}
		authorID = user.ID
	}

	raw, err := s.posts.QueryPostsByAuthor(ctx, authorID, s.pageSize, cursor)
	if err != nil {
		return AuthorPage{}, err
	}
	page := AuthorPage{Posts: raw.Posts}
	if len(raw.Posts) == s.pageSize {
		page.NextCursor = raw.NextCursor
	}
	return page, nil
}

func (s *NoteService) publish(ctx context.Context, evs ...events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.Warn("Failed to publish events", zap.Int("count", len(evs)), zap.Error(err))
	}
}
