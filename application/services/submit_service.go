package services

import (
	"context"

	"locallens/application/dto"
	"locallens/application/ports"

	"go.uber.org/zap"
)

// Enqueuer persists a note for later delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, req dto.CreateNoteRequest) (string, error)
}

// SubmitService writes a note directly when online and queues it otherwise.
type SubmitService struct {
	notes        *NoteService
	queue        Enqueuer
	connectivity ports.Connectivity
	logger       *zap.Logger
}

// NewSubmitService creates a new submit service
func NewSubmitService(notes *NoteService, queue Enqueuer, connectivity ports.Connectivity, logger *zap.Logger) *SubmitService {
	return &SubmitService{notes: notes, queue: queue, connectivity: connectivity, logger: logger}
}

// Submit routes a note by the current connectivity.
func (s *SubmitService) Submit(ctx context.Context, req dto.CreateNoteRequest) (dto.SubmitNoteResponse, error) {
	if s.connectivity.IsOnline() {
		post, err := s.notes.Create(ctx, req)
		if err != nil {
			return dto.SubmitNoteResponse{}, err
		}
		return dto.SubmitNoteResponse{Post: post}, nil
	}

	id, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		return dto.SubmitNoteResponse{}, err
	}
	s.logger.Info("Note queued while offline", zap.String("offline_id", id))
	return dto.SubmitNoteResponse{Queued: true, OfflineID: id}, nil
}
