package handlers

import (
	"net/http"

	"locallens/application/dto"
	"locallens/application/feed"
	"locallens/application/mutations"
	"locallens/application/services"
	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	pkgerrors "locallens/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// InteractionHandler handles votes and comments. Writes are optimistic: the
// response carries the cached state right away unless ?wait=true is given.
type InteractionHandler struct {
	base
	mutations *mutations.Coordinator
	comments  *services.CommentService
	cache     *feed.Cache
}

// NewInteractionHandler creates a new interaction handler
func NewInteractionHandler(
	coord *mutations.Coordinator,
	comments *services.CommentService,
	cache *feed.Cache,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *InteractionHandler {
	return &InteractionHandler{base: newBase(errs, logger), mutations: coord, comments: comments, cache: cache}
}

// VoteResponse is the post as the cache shows it after a vote.
type VoteResponse struct {
	Post    *entities.Post `json:"post,omitempty"`
	Settled bool           `json:"settled"`
}

// Vote handles POST /posts/{postID}/vote
func (h *InteractionHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req dto.VoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	direction, err := valueobjects.ParseVoteDirection(req.Direction)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	postID := chi.URLParam(r, "postID")
	pending, err := h.mutations.ToggleVote(r.Context(), postID, direction)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if waitRequested(r) {
		if err := pending.Wait(r.Context()); err != nil {
			h.respondError(w, r, err)
			return
		}
		status = http.StatusOK
	}

	resp := VoteResponse{Settled: status == http.StatusOK}
	if post, ok := h.cache.Post(postID); ok {
		resp.Post = &post
	}
	h.respondJSON(w, status, resp)
}

// CommentsResponse is the page chain of a post's comments.
type CommentsResponse struct {
	Pages []feed.CommentPage `json:"pages"`
}

// ListComments handles GET /posts/{postID}/comments
func (h *InteractionHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	pages, err := h.comments.Pages(r.Context(), chi.URLParam(r, "postID"))
	h.respondComments(w, r, pages, err)
}

// MoreComments handles POST /posts/{postID}/comments/more
func (h *InteractionHandler) MoreComments(w http.ResponseWriter, r *http.Request) {
	pages, err := h.comments.LoadMore(r.Context(), chi.URLParam(r, "postID"))
	h.respondComments(w, r, pages, err)
}

func (h *InteractionHandler) respondComments(w http.ResponseWriter, r *http.Request, pages []feed.CommentPage, err error) {
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if pages == nil {
		pages = []feed.CommentPage{}
	}
	h.respondJSON(w, http.StatusOK, CommentsResponse{Pages: pages})
}

// AddComment handles POST /posts/{postID}/comments
func (h *InteractionHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req dto.AddCommentRequest
	if !h.decode(w, r, &req) {
		return
	}
	comment, pending, err := h.mutations.AddComment(r.Context(), chi.URLParam(r, "postID"), req.Content)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if waitRequested(r) {
		if err := pending.Wait(r.Context()); err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusCreated, comment)
		return
	}
	h.respondJSON(w, http.StatusAccepted, comment)
}

// DeleteComment handles DELETE /posts/{postID}/comments/{commentID}
func (h *InteractionHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	pending, err := h.mutations.DeleteComment(r.Context(), chi.URLParam(r, "postID"), chi.URLParam(r, "commentID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if waitRequested(r) {
		if err := pending.Wait(r.Context()); err != nil {
			h.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
