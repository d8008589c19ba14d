package model

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// SRID is the working coordinate reference for every query, artifact and
// script: NAD83 / North Carolina State Plane (US survey feet).
const SRID = 2264

// BoundingBox is the rectangular query region around a center point.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// NewBoundingBox derives a square box centered at (x, y) with the given
// half-extent. The radius must be positive so the box is never empty.
func NewBoundingBox(x, y, radius float64) (BoundingBox, error) {
	if !(radius > 0) {
		return BoundingBox{}, eris.Errorf("model: bounding box radius must be positive, got %v", radius)
	}
	return BoundingBox{
		MinX: x - radius,
		MinY: y - radius,
		MaxX: x + radius,
		MaxY: y + radius,
	}, nil
}

// Envelope returns the box as "minX,minY,maxX,maxY".
func (b BoundingBox) Envelope() string {
	parts := []string{
		formatCoord(b.MinX),
		formatCoord(b.MinY),
		formatCoord(b.MaxX),
		formatCoord(b.MaxY),
	}
	return strings.Join(parts, ",")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
