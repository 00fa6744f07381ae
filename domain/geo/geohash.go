// Package geo implements the coarse cell index and exact distance test used
// to find posts near a point.
package geo

import (
	"math"
	"strings"

	pkgerrors "locallens/pkg/errors"
)

// Precision is the cell length used for every post. Seven characters give
// cells of roughly 150 m.
const Precision = 7

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Direction names one of the eight neighbors of a cell.
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// neighbor offsets in units of cell height and width
var directionOffsets = [...][2]float64{
	North:     {1, 0},
	NorthEast: {1, 1},
	East:      {0, 1},
	SouthEast: {-1, 1},
	South:     {-1, 0},
	SouthWest: {-1, -1},
	West:      {0, -1},
	NorthWest: {1, -1},
}

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate fails with an INVALID_COORDINATE validation error when the point is
// outside |lat| <= 90, |lon| <= 180.
func Validate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return pkgerrors.InvalidCoordinate(lat, lon)
	}
	return nil
}

// Encode returns the cell identifier of the point at the fixed precision.
func Encode(lat, lon float64) (string, error) {
	return EncodeWithPrecision(lat, lon, Precision)
}

// EncodeWithPrecision returns a cell identifier of the given length.
func EncodeWithPrecision(lat, lon float64, precision int) (string, error) {
	if err := Validate(lat, lon); err != nil {
		return "", err
	}
	if precision <= 0 {
		precision = Precision
	}

	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}
	var sb strings.Builder
	sb.Grow(precision)

	bit, ch := 0, 0
	even := true
	for sb.Len() < precision {
		if even {
			mid := (lonRange[0] + lonRange[1]) / 2
			if lon >= mid {
				ch |= 1 << (4 - bit)
				lonRange[0] = mid
			} else {
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		even = !even

		if bit < 4 {
			bit++
			continue
		}
		sb.WriteByte(base32[ch])
		bit, ch = 0, 0
	}
	return sb.String(), nil
}

// Cell is a decoded cell: its center and half-extent in degrees.
type Cell struct {
	Center   Point
	LatError float64
	LonError float64
}

// Decode returns the center and error margins of a cell identifier.
func Decode(cellID string) (Cell, error) {
	if cellID == "" {
		return Cell{}, pkgerrors.NewValidationError("cell id is empty").WithCode(pkgerrors.CodeInvalidCoordinate)
	}

	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}
	even := true
	for _, r := range strings.ToLower(cellID) {
		idx := strings.IndexRune(base32, r)
		if idx < 0 {
			return Cell{}, pkgerrors.NewValidationError("cell id contains invalid character").
				WithCode(pkgerrors.CodeInvalidCoordinate).
				WithDetails(map[string]interface{}{"cell_id": cellID})
		}
		for n := 4; n >= 0; n-- {
			bitSet := idx>>n&1 == 1
			if even {
				mid := (lonRange[0] + lonRange[1]) / 2
				if bitSet {
					lonRange[0] = mid
				} else {
					lonRange[1] = mid
				}
			} else {
				mid := (latRange[0] + latRange[1]) / 2
				if bitSet {
					latRange[0] = mid
				} else {
					latRange[1] = mid
				}
			}
			even = !even
		}
	}

	return Cell{
		Center: Point{
			Latitude:  (latRange[0] + latRange[1]) / 2,
			Longitude: (lonRange[0] + lonRange[1]) / 2,
		},
		LatError: (latRange[1] - latRange[0]) / 2,
		LonError: (lonRange[1] - lonRange[0]) / 2,
	}, nil
}

// PrefixChain returns every prefix of cellID from length 1 up to its full length.
func PrefixChain(cellID string) []string {
	chain := make([]string, 0, len(cellID))
	for i := 1; i <= len(cellID); i++ {
		chain = append(chain, cellID[:i])
	}
	return chain
}

// Neighbor returns the adjacent cell of the same length in the given direction.
// Longitude wraps at the antimeridian; latitude clamps at the poles.
func Neighbor(cellID string, dir Direction) (string, error) {
	cell, err := Decode(cellID)
	if err != nil {
		return "", err
	}
	offset := directionOffsets[dir]
	lat := cell.Center.Latitude + offset[0]*cell.LatError*2
	lon := cell.Center.Longitude + offset[1]*cell.LonError*2

	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	lat = math.Max(-90, math.Min(90, lat))

	return EncodeWithPrecision(lat, lon, len(cellID))
}

// NeighborCells returns the cell containing the point followed by its eight
// neighbors (N, NE, E, SE, S, SW, W, NW). Near the poles some neighbors repeat.
func NeighborCells(lat, lon float64) ([]string, error) {
	center, err := Encode(lat, lon)
	if err != nil {
		return nil, err
	}
	cells := make([]string, 0, 9)
	cells = append(cells, center)
	for dir := North; dir <= NorthWest; dir++ {
		n, err := Neighbor(center, dir)
		if err != nil {
			return nil, err
		}
		cells = append(cells, n)
	}
	return cells, nil
}
