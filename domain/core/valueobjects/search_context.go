package valueobjects

import (
	"fmt"
	"math"

	"locallens/domain/geo"
	pkgerrors "locallens/pkg/errors"
)

const (
	coordinateDecimals = 4
	radiusDecimals     = 2
)

// SearchContext identifies one proximity feed: a center and a radius.
// Coordinates are rounded so GPS jitter of a few meters maps to the same feed.
type SearchContext struct {
	Center   geo.Point `json:"center"`
	RadiusKm float64   `json:"radiusKm"`
}

// NewSearchContext validates and rounds the inputs.
func NewSearchContext(lat, lon, radiusKm float64) (SearchContext, error) {
	if err := geo.Validate(lat, lon); err != nil {
		return SearchContext{}, err
	}
	if math.IsNaN(radiusKm) || radiusKm <= 0 {
		return SearchContext{}, pkgerrors.NewValidationError(fmt.Sprintf("radius must be positive, got %v", radiusKm))
	}
	return SearchContext{
		Center: geo.Point{
			Latitude:  round(lat, coordinateDecimals),
			Longitude: round(lon, coordinateDecimals),
		},
		RadiusKm: round(radiusKm, radiusDecimals),
	}, nil
}

// Key is the cache and subscription key of the context.
func (s SearchContext) Key() string {
	return fmt.Sprintf("%.4f,%.4f,%.2f", s.Center.Latitude, s.Center.Longitude, s.RadiusKm)
}

// IsZero reports whether no context has been set.
func (s SearchContext) IsZero() bool {
	return s == SearchContext{}
}

// Contains reports whether p lies inside the context's radius.
func (s SearchContext) Contains(p geo.Point) bool {
	return geo.WithinRadius(s.Center, p, s.RadiusKm)
}

// WithCenter returns a copy moved to a new center.
func (s SearchContext) WithCenter(lat, lon float64) (SearchContext, error) {
	return NewSearchContext(lat, lon, s.RadiusKm)
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
