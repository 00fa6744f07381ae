// Package dto holds the request and response shapes shared by the
// application services and the local API.
package dto

import "locallens/domain/core/entities"

// CreateNoteRequest is the payload of a new post. It is also what the
// offline queue persists, so it must stay JSON-stable.
type CreateNoteRequest struct {
	Content       string  `json:"content" validate:"required"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	ImageURL      string  `json:"imageUrl,omitempty" validate:"omitempty,url"`
	ExpiresInDays int     `json:"expiresInDays,omitempty" validate:"gte=0"`
}

// SubmitNoteResponse reports whether a note was stored or queued.
type SubmitNoteResponse struct {
	Post      *entities.Post `json:"post,omitempty"`
	Queued    bool           `json:"queued"`
	OfflineID string         `json:"offlineId,omitempty"`
}

// VoteRequest toggles the caller's vote on a post.
type VoteRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

// AddCommentRequest adds a comment to a post.
type AddCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// LocationRequest moves the session's search center.
type LocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RadiusRequest changes the session's search radius.
type RadiusRequest struct {
	RadiusKm float64 `json:"radiusKm" validate:"gt=0"`
}

// SessionUserRequest sets the signed-in user. Authentication itself happens
// outside the engine.
type SessionUserRequest struct {
	ID          string `json:"id" validate:"required"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email" validate:"omitempty,email"`
	AvatarURL   string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}

// LifecycleRequest reports an app foreground/background transition.
type LifecycleRequest struct {
	State string `json:"state" validate:"required,oneof=foreground background"`
}

// ConnectivityRequest reports a network state change.
type ConnectivityRequest struct {
	Online bool `json:"online"`
}
