package entities

import (
	"time"

	"locallens/domain/core/valueobjects"
)

// Vote is one user's vote on one post. At most one exists per (voter, post).
type Vote struct {
	ID        string                     `json:"id"`
	VoterID   string                     `json:"voterId"`
	PostID    string                     `json:"postId"`
	Direction valueobjects.VoteDirection `json:"direction"`
	CreatedAt time.Time                  `json:"createdAt"`
}
