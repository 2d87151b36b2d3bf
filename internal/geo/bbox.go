// Package geo holds the viewport and clustering math behind the map endpoints.
package geo

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	ErrInvalidBBox  = eris.New("geo: invalid bbox")
	ErrInvalidPoint = eris.New("geo: invalid coordinates")
)

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ValidatePoint checks that lat/lng are inside the WGS84 ranges.
func ValidatePoint(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return eris.Wrapf(ErrInvalidPoint, "latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return eris.Wrapf(ErrInvalidPoint, "longitude %v out of range", lng)
	}
	return nil
}

// BBox is a map viewport. MinLng > MaxLng means the box crosses the antimeridian.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// World covers every valid coordinate.
func World() BBox {
	return BBox{MinLng: -180, MinLat: -90, MaxLng: 180, MaxLat: 90}
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat", the order Leaflet's
// LatLngBounds.toBBoxString produces.
func ParseBBox(raw string) (BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Wrapf(ErrInvalidBBox, "expected 4 values, got %d", len(parts))
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(ErrInvalidBBox, "value %q is not a number", p)
		}
		vals[i] = v
	}

	b := BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}
	return b, b.Validate()
}

// FromSlice builds a bbox from a 4-element array as sent over the websocket.
func FromSlice(vals []float64) (BBox, error) {
	if len(vals) != 4 {
		return BBox{}, eris.Wrapf(ErrInvalidBBox, "expected 4 values, got %d", len(vals))
	}
	b := BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}
	return b, b.Validate()
}

// Validate checks ranges and that the box is not inverted in latitude.
func (b BBox) Validate() error {
	if err := ValidatePoint(b.MinLat, b.MinLng); err != nil {
		return eris.Wrap(ErrInvalidBBox, err.Error())
	}
	if err := ValidatePoint(b.MaxLat, b.MaxLng); err != nil {
		return eris.Wrap(ErrInvalidBBox, err.Error())
	}
	if b.MinLat > b.MaxLat {
		return eris.Wrapf(ErrInvalidBBox, "min latitude %v above max latitude %v", b.MinLat, b.MaxLat)
	}
	return nil
}

// CrossesAntimeridian reports whether the box wraps past longitude 180.
func (b BBox) CrossesAntimeridian() bool {
	return b.MinLng > b.MaxLng
}

// Contains reports whether p lies inside the box, edges included.
func (b BBox) Contains(p Point) bool {
	if p.Latitude < b.MinLat || p.Latitude > b.MaxLat {
		return false
	}
	if b.CrossesAntimeridian() {
		return p.Longitude >= b.MinLng || p.Longitude <= b.MaxLng
	}
	return p.Longitude >= b.MinLng && p.Longitude <= b.MaxLng
}

// Extend grows the box to include p. The zero BBox is not a valid seed; start
// from BBoxOf(first point).
func (b BBox) Extend(p Point) BBox {
	if p.Latitude < b.MinLat {
		b.MinLat = p.Latitude
	}
	if p.Latitude > b.MaxLat {
		b.MaxLat = p.Latitude
	}
	if p.Longitude < b.MinLng {
		b.MinLng = p.Longitude
	}
	if p.Longitude > b.MaxLng {
		b.MaxLng = p.Longitude
	}
	return b
}

// BBoxOf is the degenerate box around a single point.
func BBoxOf(p Point) BBox {
	return BBox{MinLng: p.Longitude, MinLat: p.Latitude, MaxLng: p.Longitude, MaxLat: p.Latitude}
}
