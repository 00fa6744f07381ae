package handlers

import (
	"encoding/json"
	"net/http"

	pkgerrors "locallens/pkg/errors"
	"locallens/pkg/utils"

	"go.uber.org/zap"
)

// base carries what every handler needs to read requests and write responses.
type base struct {
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

func newBase(errs *pkgerrors.ErrorHandler, logger *zap.Logger) base {
	return base{errors: errs, logger: logger}
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h base) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		h.errors.Handle(w, r, err)
		return false
	}
	return true
}

func (h base) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h base) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.errors.Handle(w, r, err)
}

// waitRequested reports whether the caller asked to block until background
// writes settle.
func waitRequested(r *http.Request) bool {
	return r.URL.Query().Get("wait") == "true"
}
