package valueobjects

import (
	"fmt"
	"strings"

	pkgerrors "locallens/pkg/errors"
)

// VoteDirection is the current user's vote on a post. The zero value means no vote.
type VoteDirection string

const (
	VoteNone VoteDirection = ""
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// ParseVoteDirection accepts "up" or "down" in any case.
func ParseVoteDirection(s string) (VoteDirection, error) {
	switch VoteDirection(strings.ToLower(strings.TrimSpace(s))) {
	case VoteUp:
		return VoteUp, nil
	case VoteDown:
		return VoteDown, nil
	default:
		return VoteNone, pkgerrors.NewValidationError(fmt.Sprintf("invalid vote direction %q", s)).
			WithCode(pkgerrors.CodeInvalidVote)
	}
}

// IsValid reports whether d is a concrete direction (up or down).
func (d VoteDirection) IsValid() bool {
	return d == VoteUp || d == VoteDown
}

func (d VoteDirection) String() string {
	if d == VoteNone {
		return "none"
	}
	return string(d)
}

// Transition is the outcome of toggling a vote: the next state plus the
// counter deltas it implies.
type Transition struct {
	From       VoteDirection
	To         VoteDirection
	UpDelta    int
	DownDelta  int
	TallyDelta int
}

// Toggle applies the vote state machine. Requesting the current direction
// clears the vote; anything else switches to the requested direction.
func Toggle(current, requested VoteDirection) Transition {
	t := Transition{From: current}

	if current == requested {
		t.To = VoteNone
		t.addCounter(current, -1)
		if current != VoteNone {
			t.TallyDelta = -1
		}
		return t
	}

	t.To = requested
	t.addCounter(current, -1)
	t.addCounter(requested, 1)
	switch {
	case current == VoteNone && requested != VoteNone:
		t.TallyDelta = 1
	case current != VoteNone && requested == VoteNone:
		t.TallyDelta = -1
	}
	return t
}

// IsNoop reports whether the transition changes nothing.
func (t Transition) IsNoop() bool {
	return t.From == t.To && t.UpDelta == 0 && t.DownDelta == 0
}

func (t *Transition) addCounter(d VoteDirection, delta int) {
	switch d {
	case VoteUp:
		t.UpDelta += delta
	case VoteDown:
		t.DownDelta += delta
	}
}
