package esri

import (
	"bytes"
	"math"
	"strconv"
)

// Shape is the closed set of translatable wire geometries.
type Shape interface {
	shape()
}

// PathsShape is a set of line strings.
type PathsShape struct{ Paths [][][]float64 }

// RingsShape is a polygon given as rings.
type RingsShape struct{ Rings [][][]float64 }

// PointShape is a single point.
type PointShape struct{ X, Y float64 }

func (PathsShape) shape() {}
func (RingsShape) shape() {}
func (PointShape) shape() {}

// Shape classifies the wire geometry. It returns nil when the geometry is
// absent or carries none of the paths, rings or x/y markers. Markers are
// checked in that order.
func (g *Geometry) Shape() Shape {
	if g == nil {
		return nil
	}
	switch {
	case g.Paths != nil:
		return PathsShape{Paths: g.Paths}
	case g.Rings != nil:
		return RingsShape{Rings: g.Rings}
	case g.X != nil && g.Y != nil:
		x, okX := parseOrdinate(g.X)
		y, okY := parseOrdinate(g.Y)
		if !okX || !okY {
			return nil
		}
		return PointShape{X: x, Y: y}
	default:
		return nil
	}
}

// parseOrdinate accepts a JSON number or a quoted number. JSON null and the
// "NaN" marker ArcGIS uses for empty points are rejected.
func parseOrdinate(raw []byte) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	raw = bytes.Trim(raw, `"`)
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
