package handlers

import (
	"net/http"
	"time"

	"locallens/application/dto"
	"locallens/application/session"
	"locallens/domain/core/entities"
	"locallens/domain/geo"
	"locallens/infrastructure/connectivity"
	pkgerrors "locallens/pkg/errors"

	"go.uber.org/zap"
)

// SessionHandler exposes the device session: who is signed in, where the
// device is, and the host app's lifecycle and network state.
type SessionHandler struct {
	base
	session      *session.Session
	connectivity *connectivity.Monitor
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	sess *session.Session,
	monitor *connectivity.Monitor,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{base: newBase(errs, logger), session: sess, connectivity: monitor}
}

// SessionResponse is the state reported by GET /session.
type SessionResponse struct {
	User     *entities.User   `json:"user,omitempty"`
	Location *geo.Point       `json:"location,omitempty"`
	RadiusKm float64          `json:"radiusKm"`
	AppState session.AppState `json:"appState"`
	Online   bool             `json:"online"`
}

// GetSession handles GET /session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{
		RadiusKm: h.session.RadiusKm(),
		AppState: h.session.AppState(),
		Online:   h.connectivity.IsOnline(),
	}
	if user, ok := h.session.CurrentUser(); ok {
		resp.User = &user
	}
	if loc, ok := h.session.Location(); ok {
		resp.Location = &loc
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// SetUser handles PUT /session/user
func (h *SessionHandler) SetUser(w http.ResponseWriter, r *http.Request) {
	var req dto.SessionUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := entities.User{
		ID:           req.ID,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		AvatarURL:    req.AvatarURL,
		LastActiveAt: time.Now().UTC(),
	}
	h.session.SetUser(user)
	h.respondJSON(w, http.StatusOK, user)
}

// ClearUser handles DELETE /session/user
func (h *SessionHandler) ClearUser(w http.ResponseWriter, r *http.Request) {
	h.session.ClearUser()
	w.WriteHeader(http.StatusNoContent)
}

// SetLocation handles PUT /session/location
func (h *SessionHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	var req dto.LocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.session.SetLocation(req.Latitude, req.Longitude); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.GetSession(w, r)
}

// SetRadius handles PUT /session/radius
func (h *SessionHandler) SetRadius(w http.ResponseWriter, r *http.Request) {
	var req dto.RadiusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.session.SetRadius(req.RadiusKm); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.GetSession(w, r)
}

// Lifecycle handles POST /session/lifecycle
func (h *SessionHandler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	var req dto.LifecycleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.session.SetAppState(session.AppState(req.State))
	h.GetSession(w, r)
}

// Connectivity handles POST /session/connectivity
func (h *SessionHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	var req dto.ConnectivityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.connectivity.SetOnline(r.Context(), req.Online) {
		h.logger.Info("Connectivity reported", zap.Bool("online", req.Online))
	}
	h.GetSession(w, r)
}
