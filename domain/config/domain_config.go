package config

import (
	"fmt"
	"time"
)

// DomainConfig holds the business rules of the proximity feed.
type DomainConfig struct {
	// Indexing and search
	CellPrecision   int
	DefaultRadiusKm float64
	MaxRadiusKm     float64

	// Pagination
	PageSize           int
	CommentPageSize    int
	LiveCandidateCap   int
	VoteLookupParallel int

	// Content constraints
	MaxNoteLength    int
	MaxCommentLength int

	// Expiry
	DefaultExpiryDays int
	MinExpiryDays     int
	MaxExpiryDays     int

	// Refresh
	PollInterval       time.Duration
	MovementThresholdM float64
	OfflineRetention   time.Duration
	OfflineStorageKey  string
	ReconcileTimeout   time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		CellPrecision:   7,
		DefaultRadiusKm: 5,
		MaxRadiusKm:     50,

		PageSize:           20,
		CommentPageSize:    20,
		LiveCandidateCap:   50,
		VoteLookupParallel: 8,

		MaxNoteLength:    500,
		MaxCommentLength: 280,

		DefaultExpiryDays: 7,
		MinExpiryDays:     1,
		MaxExpiryDays:     30,

		PollInterval:       30 * time.Second,
		MovementThresholdM: 100,
		OfflineRetention:   7 * 24 * time.Hour,
		OfflineStorageKey:  "locallens_offline_notes",
		ReconcileTimeout:   10 * time.Second,
	}
}

// DevelopmentDomainConfig polls faster so local runs show refreshes quickly.
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()
	config.PollInterval = 10 * time.Second
	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.PageSize <= 0 || c.LiveCandidateCap <= 0 {
		return fmt.Errorf("page size and live candidate cap must be positive")
	}
	if c.MinExpiryDays > c.DefaultExpiryDays || c.DefaultExpiryDays > c.MaxExpiryDays {
		return fmt.Errorf("default expiry %d outside [%d, %d]", c.DefaultExpiryDays, c.MinExpiryDays, c.MaxExpiryDays)
	}
	if c.DefaultRadiusKm <= 0 || c.DefaultRadiusKm > c.MaxRadiusKm {
		return fmt.Errorf("default radius %.2f outside (0, %.2f]", c.DefaultRadiusKm, c.MaxRadiusKm)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}
