package layer

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Valid reports whether g can be written as-is: finite coordinates, closed
// simple rings of at least four vertices enclosing a non-zero area, and line
// strings with at least two distinct vertices.
func Valid(g geom.T) bool {
	switch t := g.(type) {
	case nil:
		return true
	case *geom.Point:
		return finite(t.FlatCoords())
	case *geom.LineString:
		return validLine(t.FlatCoords())
	case *geom.MultiLineString:
		for i := range t.NumLineStrings() {
			if !validLine(t.LineString(i).FlatCoords()) {
				return false
			}
		}
		return t.NumLineStrings() > 0
	case *geom.Polygon:
		for i := range t.NumLinearRings() {
			if !validRing(t.LinearRing(i).FlatCoords()) {
				return false
			}
		}
		return t.NumLinearRings() > 0
	default:
		return false
	}
}

// Repair returns g unchanged when it is valid and otherwise its zero-width
// rebuild: repeated vertices dropped, open rings closed, self-intersecting
// rings split at their crossings into simple loops, degenerate loops and
// lines removed, shells wound clockwise and holes counter-clockwise. A
// polygon whose first ring leaves nothing, or a geometry with nothing left,
// becomes nil. Collinear overlaps are not resolved.
func Repair(g geom.T) geom.T {
	if Valid(g) {
		return g
	}
	switch t := g.(type) {
	case *geom.Point:
		return nil
	case *geom.LineString:
		flat, ok := repairLine(t.FlatCoords())
		if !ok {
			return nil
		}
		return geom.NewMultiLineStringFlat(geom.XY, flat, []int{len(flat)}).SetSRID(t.SRID())
	case *geom.MultiLineString:
		return repairMultiLine(t)
	case *geom.Polygon:
		return repairPolygon(t)
	default:
		return nil
	}
}

func repairMultiLine(m *geom.MultiLineString) geom.T {
	var flat []float64
	var ends []int
	for i := range m.NumLineStrings() {
		line, ok := repairLine(m.LineString(i).FlatCoords())
		if !ok {
			continue
		}
		flat = append(flat, line...)
		ends = append(ends, len(flat))
	}
	if len(ends) == 0 {
		return nil
	}
	return geom.NewMultiLineStringFlat(geom.XY, flat, ends).SetSRID(m.SRID())
}

// repairPolygon keeps the winding convention of the first ring: rings wound
// the same way are shells, the others holes. Esri multipart polygons carry
// several shells in one ring list.
func repairPolygon(p *geom.Polygon) geom.T {
	var flat []float64
	var ends []int
	shellCW := true
	for i := range p.NumLinearRings() {
		ring := closeRing(p.LinearRing(i).FlatCoords())
		area := signedArea(ring)
		if i == 0 {
			shellCW = area <= 0
		}
		shell := i == 0 || (area < 0) == shellCW
		parts := repairRing(ring)
		if len(parts) == 0 && i == 0 {
			return nil
		}
		for _, part := range parts {
			if clockwise(part) != shell {
				reverse(part)
			}
			flat = append(flat, part...)
			ends = append(ends, len(flat))
		}
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(p.SRID())
}

// repairLine drops repeated and non-finite vertices. It fails when fewer
// than two vertices remain.
func repairLine(flat []float64) ([]float64, bool) {
	out := dedupe(flat)
	return out, len(out) >= 4
}

// closeRing dedupes a ring and closes it.
func closeRing(flat []float64) []float64 {
	out := dedupe(flat)
	if n := len(out); n >= 2 && (out[0] != out[n-2] || out[1] != out[n-1]) {
		out = append(out, out[0], out[1])
	}
	return out
}

// repairRing splits a closed ring into its simple loops with non-zero area.
func repairRing(ring []float64) [][]float64 {
	if len(ring) < 8 {
		return nil
	}
	var parts [][]float64
	for _, loop := range loops(node(ring)) {
		if validRing(loop) {
			parts = append(parts, loop)
		}
	}
	return parts
}

func dedupe(flat []float64) []float64 {
	out := make([]float64, 0, len(flat))
	for i := 0; i+1 < len(flat); i += 2 {
		x, y := flat[i], flat[i+1]
		if !finite([]float64{x, y}) {
			continue
		}
		if n := len(out); n >= 2 && out[n-2] == x && out[n-1] == y {
			continue
		}
		out = append(out, x, y)
	}
	return out
}

func validLine(flat []float64) bool {
	if !finite(flat) {
		return false
	}
	for i := 2; i+1 < len(flat); i += 2 {
		if flat[i] != flat[0] || flat[i+1] != flat[1] {
			return true
		}
	}
	return false
}

func validRing(flat []float64) bool {
	n := len(flat)
	if n < 8 || !finite(flat) {
		return false
	}
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		return false
	}
	return signedArea(flat) != 0 && simple(flat)
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	for i := 0; i+3 < len(flat); i += 2 {
		sum += flat[i]*flat[i+3] - flat[i+2]*flat[i+1]
	}
	return sum / 2
}

func clockwise(flat []float64) bool {
	return signedArea(flat) < 0
}

func reverse(flat []float64) {
	for i, j := 0, len(flat)-2; i < j; i, j = i+2, j-2 {
		flat[i], flat[j] = flat[j], flat[i]
		flat[i+1], flat[j+1] = flat[j+1], flat[i+1]
	}
}

func finite(flat []float64) bool {
	for _, v := range flat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
