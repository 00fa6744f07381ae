// Package offline persists notes written without connectivity and replays
// them against the remote store once the device is back online.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"locallens/application/dto"
	"locallens/application/ports"
	"locallens/domain/core/entities"
	pkgerrors "locallens/pkg/errors"
	"locallens/pkg/observability"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Record is one queued note as stored on disk.
type Record struct {
	ID        string                `json:"id"`
	Note      dto.CreateNoteRequest `json:"note"`
	CreatedAt time.Time             `json:"createdAt"`
	Synced    bool                  `json:"synced"`
	SyncedAt  *time.Time            `json:"syncedAt,omitempty"`
	PostID    string                `json:"postId,omitempty"`
	Attempts  int                   `json:"attempts"`
	LastError string                `json:"lastError,omitempty"`
}

// NoteCreator validates and writes notes. The note service implements it.
type NoteCreator interface {
	Validate(req dto.CreateNoteRequest) (dto.CreateNoteRequest, error)
	Create(ctx context.Context, req dto.CreateNoteRequest) (*entities.Post, error)
}

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Attempted   int  `json:"attempted"`
	Synced      int  `json:"synced"`
	Failed      int  `json:"failed"`
	Purged      int  `json:"purged"`
	Skipped     bool `json:"skipped"`
	Offline     bool `json:"offline,omitempty"`
	BreakerOpen bool `json:"breakerOpen"`
}

// Options tunes the queue.
type Options struct {
	StorageKey string
	Retention  time.Duration
	// BreakerThreshold is the number of consecutive failed writes that opens the breaker.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// Queue is the offline note queue. Every record lives in one JSON array
// under Options.StorageKey.
type Queue struct {
	store        ports.KeyValueStore
	creator      NoteCreator
	connectivity ports.Connectivity
	breaker      *gobreaker.CircuitBreaker
	opts         Options
	metrics      *observability.Collector
	now          func() time.Time
	logger       *zap.Logger

	mu       sync.Mutex
	draining atomic.Bool
	wg       sync.WaitGroup
}

// NewQueue creates a queue. metrics may be nil.
func NewQueue(
	store ports.KeyValueStore,
	creator NoteCreator,
	connectivity ports.Connectivity,
	opts Options,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Queue {
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 3
	}
	if opts.BreakerTimeout == 0 {
		opts.BreakerTimeout = 30 * time.Second
	}

	q := &Queue{
		store:        store,
		creator:      creator,
		connectivity: connectivity,
		opts:         opts,
		metrics:      metrics,
		now:          time.Now,
		logger:       logger,
	}
	q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "offline-drain",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return q
}

func newOfflineID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("offline_%d_%s", now.UnixMilli(), suffix)
}

// Enqueue validates and persists a note, then starts a drain when online.
func (q *Queue) Enqueue(ctx context.Context, req dto.CreateNoteRequest) (string, error) {
	note, err := q.creator.Validate(req)
	if err != nil {
		return "", err
	}

	now := q.now()
	rec := Record{ID: newOfflineID(now), Note: note, CreatedAt: now}

	q.mu.Lock()
	records, err := q.loadLocked(ctx)
	if err == nil {
		records = append(records, rec)
		err = q.saveLocked(ctx, records)
	}
	q.mu.Unlock()
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to store offline note")
	}

	q.logger.Info("Queued offline note", zap.String("offline_id", rec.ID))
	if q.connectivity.IsOnline() {
		q.TriggerDrain(ctx)
	}
	return rec.ID, nil
}

// Records returns every stored record in creation order.
func (q *Queue) Records(ctx context.Context) ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked(ctx)
}

// PendingCount returns the number of unsynced records.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	records, err := q.Records(ctx)
	if err != nil {
		return 0, err
	}
	return countPending(records), nil
}

// Drain replays unsynced records oldest first. Only one drain runs at a
// time; a concurrent call returns a skipped result. Per-record failures are
// logged and left for the next drain.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}, nil
	}
	defer q.draining.Store(false)

	if !q.connectivity.IsOnline() {
		return DrainResult{Skipped: true, Offline: true}, nil
	}

	records, err := q.Records(ctx)
	if err != nil {
		return DrainResult{}, err
	}

	var result DrainResult
	for _, rec := range records {
		if rec.Synced {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		result.Attempted++
		var post *entities.Post
		var createErr error
		_, err := q.breaker.Execute(func() (interface{}, error) {
			post, createErr = q.creator.Create(ctx, rec.Note)
			// A rejected payload says nothing about the store's health.
			if pkgerrors.IsValidation(createErr) {
				return nil, nil
			}
			return nil, createErr
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result.Attempted--
			result.BreakerOpen = true
			q.logger.Warn("Offline drain stopped by open circuit breaker", zap.String("offline_id", rec.ID))
			break
		}

		if createErr != nil {
			result.Failed++
			q.logger.Warn("Offline note sync failed",
				zap.String("offline_id", rec.ID),
				zap.Error(createErr),
			)
			q.update(ctx, rec.ID, func(r *Record) {
				r.Attempts++
				r.LastError = createErr.Error()
			})
			continue
		}

		result.Synced++
		syncedAt := q.now()
		q.update(ctx, rec.ID, func(r *Record) {
			r.Attempts++
			r.Synced = true
			r.SyncedAt = &syncedAt
			r.LastError = ""
			if post != nil {
				r.PostID = post.ID
			}
		})
	}

	purged, err := q.Purge(ctx)
	if err != nil {
		q.logger.Warn("Offline purge failed", zap.Error(err))
	}
	result.Purged = purged

	q.metrics.RecordOfflineSync("synced", result.Synced)
	q.metrics.RecordOfflineSync("failed", result.Failed)
	q.logger.Info("Offline drain finished",
		zap.Int("attempted", result.Attempted),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
		zap.Int("purged", result.Purged),
		zap.Bool("breaker_open", result.BreakerOpen),
	)
	return result, nil
}

// Purge drops synced records created more than the retention period ago.
// Unsynced records are never dropped.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	cutoff := q.now().Add(-q.opts.Retention)

	q.mu.Lock()
	defer q.mu.Unlock()
	records, err := q.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	kept := records[:0]
	for _, r := range records {
		if r.Synced && r.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
	}
	purged := len(records) - len(kept)
	if purged == 0 {
		return 0, nil
	}
	if err := q.saveLocked(ctx, kept); err != nil {
		return 0, err
	}
	return purged, nil
}

// TriggerDrain starts a drain in the background.
func (q *Queue) TriggerDrain(ctx context.Context) {
	drainCtx := context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if _, err := q.Drain(drainCtx); err != nil {
			q.logger.Warn("Offline drain failed", zap.Error(err))
		}
	}()
}

// OnReconnect is called on an offline to online transition.
func (q *Queue) OnReconnect(ctx context.Context) {
	q.TriggerDrain(ctx)
}

// OnForeground is called when the app returns to the foreground.
func (q *Queue) OnForeground(ctx context.Context) {
	if q.connectivity.IsOnline() {
		q.TriggerDrain(ctx)
	}
}

// Wait blocks until background drains have finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) update(ctx context.Context, id string, fn func(*Record)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	records, err := q.loadLocked(ctx)
	if err != nil {
		q.logger.Warn("Failed to load offline notes", zap.Error(err))
		return
	}
	for i := range records {
		if records[i].ID == id {
			fn(&records[i])
			break
		}
	}
	if err := q.saveLocked(ctx, records); err != nil {
		q.logger.Warn("Failed to save offline notes", zap.String("offline_id", id), zap.Error(err))
	}
}

func (q *Queue) loadLocked(ctx context.Context) ([]Record, error) {
	data, err := q.store.Get(ctx, q.opts.StorageKey)
	if err != nil {
		return nil, err
	}
	var records []Record
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, pkgerrors.Wrap(err, "corrupt offline queue")
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (q *Queue) saveLocked(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode offline queue")
	}
	if err := q.store.Set(ctx, q.opts.StorageKey, data); err != nil {
		return err
	}
	q.metrics.SetOfflinePending(countPending(records))
	return nil
}

func countPending(records []Record) int {
	n := 0
	for _, r := range records {
		if !r.Synced {
			n++
		}
	}
	return n
}
