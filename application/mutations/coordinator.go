// Package mutations applies user writes to the local cache before the remote
// store confirms them, and undoes them when the store rejects the write.
package mutations

import (
	"context"
	"sync"
	"time"

	"locallens/application/feed"
	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/domain/core/validators"
	"locallens/domain/core/valueobjects"
	"locallens/domain/events"
	pkgerrors "locallens/pkg/errors"
	"locallens/pkg/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity supplies the signed-in user.
type Identity interface {
	RequireUser() (entities.User, error)
}

// Pending is the handle of a write running in the background.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the write has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write settles and returns its error.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Coordinator runs optimistic votes and comment writes against the cache.
type Coordinator struct {
	votes            ports.VoteStore
	posts            ports.PostReader
	comments         ports.CommentStore
	cache            *feed.Cache
	identity         Identity
	validator        *validators.ContentValidator
	publisher        ports.EventPublisher
	metrics          *observability.Collector
	reconcileTimeout time.Duration
	now              func() time.Time
	logger           *zap.Logger

	mu          sync.Mutex
	generations map[string]uint64
	reconciles  map[string]context.CancelFunc
	wg          sync.WaitGroup
}

// NewCoordinator creates a mutation coordinator. publisher and metrics may be nil.
func NewCoordinator(
	votes ports.VoteStore,
	posts ports.PostReader,
	comments ports.CommentStore,
	cache *feed.Cache,
	identity Identity,
	validator *validators.ContentValidator,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	reconcileTimeout time.Duration,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		votes:            votes,
		posts:            posts,
		comments:         comments,
		cache:            cache,
		identity:         identity,
		validator:        validator,
		publisher:        publisher,
		metrics:          metrics,
		reconcileTimeout: reconcileTimeout,
		now:              time.Now,
		logger:           logger,
		generations:      make(map[string]uint64),
		reconciles:       make(map[string]context.CancelFunc),
	}
}

func voteKey(postID string) string {
	return "vote:" + postID
}

// ToggleVote flips the current user's vote on a post. The cache reflects the
// new state when ToggleVote returns; the store write runs in the background.
func (c *Coordinator) ToggleVote(ctx context.Context, postID string, direction valueobjects.VoteDirection) (*Pending, error) {
	user, err := c.identity.RequireUser()
	if err != nil {
		return nil, err
	}
	if postID == "" {
		return nil, pkgerrors.NewValidationError("post id is required")
	}
	if !direction.IsValid() {
		return nil, pkgerrors.NewValidationError("vote direction must be up or down").
			WithCode(pkgerrors.CodeInvalidVote)
	}

	key := voteKey(postID)
	snap := c.cache.SnapshotPost(postID)

	c.mu.Lock()
	if cancel, ok := c.reconciles[key]; ok {
		cancel()
		delete(c.reconciles, key)
	}
	c.generations[key]++
	gen := c.generations[key]
	c.mu.Unlock()

	current, _ := c.cache.UserVote(postID)
	c.cache.ApplyVote(postID, valueobjects.Toggle(current, direction))

	pending := newPending()
	writeCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		t, err := c.commitVote(writeCtx, user.ID, postID, direction)
		if err != nil {
			c.logger.Warn("Vote write failed",
				zap.String("post_id", postID),
				zap.String("direction", direction.String()),
				zap.Error(err),
			)
			c.rollback(key, gen, "vote", func() { c.cache.RestorePost(snap) })
		} else {
			c.publish(writeCtx, events.NewVoteCast(postID, user.ID, string(t.To), t.UpDelta, t.DownDelta, c.now()))
		}
		pending.finish(err)
		c.scheduleReconcile(writeCtx, key, gen, user.ID, postID)
	}()

	return pending, nil
}

// commitVote reads the authoritative vote and commits the matching batch.
func (c *Coordinator) commitVote(
	ctx context.Context,
	voterID, postID string,
	direction valueobjects.VoteDirection,
) (valueobjects.Transition, error) {
	existing, err := c.votes.GetUserVote(ctx, voterID, postID)
	if err != nil {
		return valueobjects.Transition{}, err
	}
	current := valueobjects.VoteNone
	if existing != nil {
		current = existing.Direction
	}

	t := valueobjects.Toggle(current, direction)
	batch := ports.VoteBatch{
		VoterID:    voterID,
		PostID:     postID,
		Existing:   existing,
		Transition: t,
	}
	if t.To != valueobjects.VoteNone {
		next := entities.Vote{
			ID:        uuid.NewString(),
			VoterID:   voterID,
			PostID:    postID,
			Direction: t.To,
			CreatedAt: c.now(),
		}
		if existing != nil {
			next.ID = existing.ID
		}
		batch.Next = &next
	}

	if err := c.votes.CommitVote(ctx, batch); err != nil {
		return t, err
	}
	return t, nil
}

// rollback runs restore unless a newer mutation on the same key has started.
func (c *Coordinator) rollback(key string, gen uint64, mutation string, restore func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != gen {
		c.logger.Debug("Skipping rollback of superseded mutation", zap.String("key", key))
		return
	}
	restore()
	c.metrics.RecordRollback(mutation)
}

// scheduleReconcile fetches the authoritative vote and counters for a post
// and writes them into the cache. A newer mutation on the key cancels it.
func (c *Coordinator) scheduleReconcile(parent context.Context, key string, gen uint64, voterID, postID string) {
	c.mu.Lock()
	if c.generations[key] != gen {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(parent, c.reconcileTimeout)
	c.reconciles[key] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		vote, err := c.votes.GetUserVote(ctx, voterID, postID)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Vote reconcile failed", zap.String("post_id", postID), zap.Error(err))
			}
			c.finishReconcile(key, gen)
			return
		}
		post, err := c.posts.GetPost(ctx, postID)
		if err != nil {
			post = nil
			if ctx.Err() == nil {
				c.logger.Warn("Post reconcile failed", zap.String("post_id", postID), zap.Error(err))
			}
		}

		direction := valueobjects.VoteNone
		if vote != nil {
			direction = vote.Direction
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if ctx.Err() != nil || c.generations[key] != gen {
			return
		}
		c.cache.Reconcile(postID, post, direction)
		delete(c.reconciles, key)
	}()
}

func (c *Coordinator) finishReconcile(key string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] == gen {
		delete(c.reconciles, key)
	}
}

// AddComment inserts a pending comment into the cache and writes it in the
// background. The returned comment carries the temporary id.
func (c *Coordinator) AddComment(ctx context.Context, postID, content string) (entities.Comment, *Pending, error) {
	user, err := c.identity.RequireUser()
	if err != nil {
		return entities.Comment{}, nil, err
	}
	if postID == "" {
		return entities.Comment{}, nil, pkgerrors.NewValidationError("post id is required")
	}
	text, err := c.validator.CommentContent(content)
	if err != nil {
		return entities.Comment{}, nil, err
	}

	author := user.AsAuthor()
	temp := entities.Comment{
		ID:           "temp_" + uuid.NewString(),
		PostID:       postID,
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorAvatar: author.AvatarURL,
		Content:      text,
		CreatedAt:    c.now(),
		Pending:      true,
	}
	c.cache.InsertComment(postID, temp)
	c.cache.AdjustCommentsCount(postID, 1)

	pending := newPending()
	writeCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.cache.InvalidateComments(postID)

		stored := temp
		stored.ID = uuid.NewString()
		stored.Pending = false

		err := c.comments.CreateComment(writeCtx, stored)
		if err != nil {
			c.logger.Warn("Comment write failed", zap.String("post_id", postID), zap.Error(err))
			c.cache.RemoveComment(postID, temp.ID)
			c.cache.AdjustCommentsCount(postID, -1)
			c.metrics.RecordRollback("comment_add")
		} else {
			c.publish(writeCtx, events.NewCommentAdded(postID, stored.ID, user.ID, c.now()))
		}
		pending.finish(err)
	}()

	return temp, pending, nil
}

// DeleteComment removes a comment the current user wrote. Ownership is
// checked before anything changes.
func (c *Coordinator) DeleteComment(ctx context.Context, postID, commentID string) (*Pending, error) {
	user, err := c.identity.RequireUser()
	if err != nil {
		return nil, err
	}
	if postID == "" || commentID == "" {
		return nil, pkgerrors.NewValidationError("post id and comment id are required")
	}

	comment, ok := c.cache.Comment(postID, commentID)
	if !ok {
		fetched, err := c.comments.GetComment(ctx, commentID)
		if err != nil {
			return nil, err
		}
		comment = *fetched
	}
	if comment.PostID != postID {
		return nil, pkgerrors.NewNotFoundError("comment")
	}
	if !comment.IsOwnedBy(user.ID) {
		return nil, pkgerrors.NotAuthorized("delete this comment")
	}
	if comment.Pending {
		return nil, pkgerrors.NewConflictError("comment is still being posted")
	}

	removed, pos, wasCached := c.cache.RemoveComment(postID, commentID)
	c.cache.AdjustCommentsCount(postID, -1)

	pending := newPending()
	writeCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.cache.InvalidateComments(postID)

		err := c.comments.DeleteComment(writeCtx, comment)
		if err != nil {
			c.logger.Warn("Comment delete failed",
				zap.String("post_id", postID),
				zap.String("comment_id", commentID),
				zap.Error(err),
			)
			if wasCached {
				c.cache.RestoreComment(postID, removed, pos)
			}
			c.cache.AdjustCommentsCount(postID, 1)
			c.metrics.RecordRollback("comment_delete")
		} else {
			c.publish(writeCtx, events.NewCommentDeleted(postID, commentID, user.ID, c.now()))
		}
		pending.finish(err)
	}()

	return pending, nil
}

// ResetUser drops per-user vote state after the signed-in user changes.
// Pending reconciliations are cancelled and in-flight writes of the previous
// user no longer roll back the cache.
func (c *Coordinator) ResetUser() {
	c.mu.Lock()
	for key, cancel := range c.reconciles {
		cancel()
		delete(c.reconciles, key)
	}
	for key := range c.generations {
		c.generations[key]++
	}
	c.mu.Unlock()

	c.cache.ClearVotes()
}

// Wait blocks until every background write and reconciliation has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels pending reconciliations and waits for writes to settle.
func (c *Coordinator) Close() {
	c.mu.Lock()
	for key, cancel := range c.reconciles {
		cancel()
		delete(c.reconciles, key)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) publish(ctx context.Context, evs ...events.DomainEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, evs...); err != nil {
		c.logger.Warn("Failed to publish events", zap.Int("count", len(evs)), zap.Error(err))
	}
}
