package validators

import (
	"strings"
	"unicode/utf8"

	"locallens/domain/config"
	pkgerrors "locallens/pkg/errors"
)

// ContentValidator enforces the length and expiry rules on user content.
type ContentValidator struct {
	maxNoteLength    int
	maxCommentLength int
	defaultExpiry    int
	minExpiry        int
	maxExpiry        int
}

// NewContentValidator creates a validator from the domain rules.
func NewContentValidator(cfg *config.DomainConfig) *ContentValidator {
	return &ContentValidator{
		maxNoteLength:    cfg.MaxNoteLength,
		maxCommentLength: cfg.MaxCommentLength,
		defaultExpiry:    cfg.DefaultExpiryDays,
		minExpiry:        cfg.MinExpiryDays,
		maxExpiry:        cfg.MaxExpiryDays,
	}
}

// NoteContent trims and checks a post body.
func (v *ContentValidator) NoteContent(content string) (string, error) {
	return checkText("content", content, v.maxNoteLength)
}

// CommentContent trims and checks a comment body.
func (v *ContentValidator) CommentContent(content string) (string, error) {
	return checkText("comment", content, v.maxCommentLength)
}

// ExpiryDays resolves the requested lifetime. Zero means the default.
func (v *ContentValidator) ExpiryDays(days int) (int, error) {
	if days == 0 {
		return v.defaultExpiry, nil
	}
	if days < v.minExpiry || days > v.maxExpiry {
		return 0, pkgerrors.InvalidExpiry(days, v.minExpiry, v.maxExpiry)
	}
	return days, nil
}

func checkText(field, text string, max int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", pkgerrors.ContentRequired(field)
	}
	if utf8.RuneCountInString(trimmed) > max {
		return "", pkgerrors.ContentTooLong(field, max)
	}
	return trimmed, nil
}
