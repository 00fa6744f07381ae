package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm_NewYorkToLosAngeles(t *testing.T) {
	newYork := Point{Latitude: 40.7128, Longitude: -74.0060}
	losAngeles := Point{Latitude: 34.0522, Longitude: -118.2437}

	assert.InDelta(t, 3936, DistanceKm(newYork, losAngeles), 10)
}

func TestDistanceKm_IsSymmetric(t *testing.T) {
	a := Point{Latitude: 51.5074, Longitude: -0.1278}
	b := Point{Latitude: 48.8566, Longitude: 2.3522}

	assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-9)
}

func TestWithinRadius(t *testing.T) {
	center := Point{Latitude: 40.7128, Longitude: -74.0060}

	t.Run("zero distance is always within", func(t *testing.T) {
		for _, r := range []float64{0, 0.001, 5, 20000} {
			assert.True(t, WithinRadius(center, center, r))
		}
	})

	t.Run("point roughly 100 m north", func(t *testing.T) {
		north := Point{Latitude: center.Latitude + 0.0009, Longitude: center.Longitude}

		assert.True(t, WithinRadius(center, north, 0.101))
		assert.False(t, WithinRadius(center, north, 0.099))
	})

	t.Run("point outside default radius", func(t *testing.T) {
		far := Point{Latitude: center.Latitude + 0.1, Longitude: center.Longitude}

		assert.False(t, WithinRadius(center, far, 5))
	})
}
