// Package persistence holds decorators shared by the remote store backends.
package persistence

import (
	"context"
	"time"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/pkg/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore decorates a RemoteStore with a span and a metrics
// sample per call. Errors pass through unchanged.
type InstrumentedStore struct {
	inner   ports.RemoteStore
	metrics *observability.Collector
	tracer  trace.Tracer
}

var _ ports.RemoteStore = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps inner. metrics may be nil; a nil tp uses the
// global tracer provider.
func NewInstrumentedStore(inner ports.RemoteStore, metrics *observability.Collector, tp trace.TracerProvider) *InstrumentedStore {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &InstrumentedStore{
		inner:   inner,
		metrics: metrics,
		tracer:  tp.Tracer("locallens.infrastructure.persistence"),
	}
}

func (s *InstrumentedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "RemoteStore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	began := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
		s.metrics.RecordStoreOperation(op, time.Since(began), err)
	}
}

func (s *InstrumentedStore) QueryActivePosts(ctx context.Context, q ports.PostQuery) (page ports.PostPage, err error) {
	ctx, done := s.start(ctx, "QueryActivePosts",
		attribute.Int("query.limit", q.Limit),
		attribute.Bool("query.has_cursor", q.Cursor != ""),
	)
	defer func() { done(err) }()
	return s.inner.QueryActivePosts(ctx, q)
}

func (s *InstrumentedStore) GetPost(ctx context.Context, id string) (post *entities.Post, err error) {
	ctx, done := s.start(ctx, "GetPost", attribute.String("post.id", id))
	defer func() { done(err) }()
	return s.inner.GetPost(ctx, id)
}

func (s *InstrumentedStore) QueryPostsByAuthor(ctx context.Context, authorID string, limit int, cursor string) (page ports.PostPage, err error) {
	ctx, done := s.start(ctx, "QueryPostsByAuthor",
		attribute.String("author.id", authorID),
		attribute.Int("query.limit", limit),
	)
	defer func() { done(err) }()
	return s.inner.QueryPostsByAuthor(ctx, authorID, limit, cursor)
}

// WatchActivePosts only traces the subscription call, not the snapshots.
func (s *InstrumentedStore) WatchActivePosts(ctx context.Context, q ports.WatchQuery, onSnapshot func([]entities.Post)) (unsub ports.Unsubscribe, err error) {
	ctx, done := s.start(ctx, "WatchActivePosts", attribute.Int("query.limit", q.Limit))
	defer func() { done(err) }()
	return s.inner.WatchActivePosts(ctx, q, onSnapshot)
}

func (s *InstrumentedStore) CreatePost(ctx context.Context, post entities.Post) (err error) {
	ctx, done := s.start(ctx, "CreatePost",
		attribute.String("post.id", post.ID),
		attribute.String("post.cell", post.CellID),
	)
	defer func() { done(err) }()
	return s.inner.CreatePost(ctx, post)
}

func (s *InstrumentedStore) DeactivatePost(ctx context.Context, postID string) (err error) {
	ctx, done := s.start(ctx, "DeactivatePost", attribute.String("post.id", postID))
	defer func() { done(err) }()
	return s.inner.DeactivatePost(ctx, postID)
}

func (s *InstrumentedStore) GetUserVote(ctx context.Context, voterID, postID string) (vote *entities.Vote, err error) {
	ctx, done := s.start(ctx, "GetUserVote", attribute.String("post.id", postID))
	defer func() { done(err) }()
	return s.inner.GetUserVote(ctx, voterID, postID)
}

func (s *InstrumentedStore) CommitVote(ctx context.Context, batch ports.VoteBatch) (err error) {
	ctx, done := s.start(ctx, "CommitVote",
		attribute.String("post.id", batch.PostID),
		attribute.String("vote.to", batch.Transition.To.String()),
	)
	defer func() { done(err) }()
	return s.inner.CommitVote(ctx, batch)
}

func (s *InstrumentedStore) QueryComments(ctx context.Context, postID string, limit int, cursor string) (page ports.CommentPage, err error) {
	ctx, done := s.start(ctx, "QueryComments",
		attribute.String("post.id", postID),
		attribute.Int("query.limit", limit),
	)
	defer func() { done(err) }()
	return s.inner.QueryComments(ctx, postID, limit, cursor)
}

func (s *InstrumentedStore) GetComment(ctx context.Context, id string) (comment *entities.Comment, err error) {
	ctx, done := s.start(ctx, "GetComment", attribute.String("comment.id", id))
	defer func() { done(err) }()
	return s.inner.GetComment(ctx, id)
}

func (s *InstrumentedStore) CreateComment(ctx context.Context, comment entities.Comment) (err error) {
	ctx, done := s.start(ctx, "CreateComment", attribute.String("post.id", comment.PostID))
	defer func() { done(err) }()
	return s.inner.CreateComment(ctx, comment)
}

func (s *InstrumentedStore) DeleteComment(ctx context.Context, comment entities.Comment) (err error) {
	ctx, done := s.start(ctx, "DeleteComment",
		attribute.String("post.id", comment.PostID),
		attribute.String("comment.id", comment.ID),
	)
	defer func() { done(err) }()
	return s.inner.DeleteComment(ctx, comment)
}

func (s *InstrumentedStore) GetUser(ctx context.Context, id string) (user *entities.User, err error) {
	ctx, done := s.start(ctx, "GetUser", attribute.String("user.id", id))
	defer func() { done(err) }()
	return s.inner.GetUser(ctx, id)
}

func (s *InstrumentedStore) SaveUser(ctx context.Context, user entities.User) (err error) {
	ctx, done := s.start(ctx, "SaveUser", attribute.String("user.id", user.ID))
	defer func() { done(err) }()
	return s.inner.SaveUser(ctx, user)
}
