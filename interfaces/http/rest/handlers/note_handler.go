package handlers

import (
	"net/http"

	"locallens/application/dto"
	"locallens/application/offline"
	"locallens/application/services"
	pkgerrors "locallens/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NoteHandler handles creating and retiring notes and the offline queue.
type NoteHandler struct {
	base
	submit *services.SubmitService
	notes  *services.NoteService
	queue  *offline.Queue
}

// NewNoteHandler creates a new note handler
func NewNoteHandler(
	submit *services.SubmitService,
	notes *services.NoteService,
	queue *offline.Queue,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *NoteHandler {
	return &NoteHandler{base: newBase(errs, logger), submit: submit, notes: notes, queue: queue}
}

// CreateNote handles POST /notes. A stored note answers 201, a queued one 202.
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateNoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.submit.Submit(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Queued {
		status = http.StatusAccepted
	}
	h.respondJSON(w, status, resp)
}

// DeactivateNote handles DELETE /notes/{postID}
func (h *NoteHandler) DeactivateNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Deactivate(r.Context(), chi.URLParam(r, "postID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListByAuthor handles GET /users/{userID}/notes
func (h *NoteHandler) ListByAuthor(w http.ResponseWriter, r *http.Request) {
	page, err := h.notes.ListByAuthor(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("cursor"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, page)
}

// OfflineResponse lists the offline queue.
type OfflineResponse struct {
	Records []offline.Record `json:"records"`
	Pending int              `json:"pending"`
}

// ListOffline handles GET /notes/offline
func (h *NoteHandler) ListOffline(w http.ResponseWriter, r *http.Request) {
	records, err := h.queue.Records(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pending := 0
	for _, rec := range records {
		if !rec.Synced {
			pending++
		}
	}
	if records == nil {
		records = []offline.Record{}
	}
	h.respondJSON(w, http.StatusOK, OfflineResponse{Records: records, Pending: pending})
}

// SyncOffline handles POST /notes/offline/sync. It answers 503 while offline.
func (h *NoteHandler) SyncOffline(w http.ResponseWriter, r *http.Request) {
	result, err := h.queue.Drain(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if result.Offline {
		h.respondError(w, r, pkgerrors.NewUnavailableError("remote store"))
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// PurgeOffline handles DELETE /notes/offline/synced
func (h *NoteHandler) PurgeOffline(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.Purge(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"purged": n})
}
