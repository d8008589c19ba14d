package esri

import (
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Translate converts a wire geometry into its canonical form: paths become a
// MultiLineString, rings a Polygon and x/y a Point. Coordinates are passed
// through verbatim; ring orientation is not validated. It returns nil when
// the geometry cannot be translated, which callers treat as a dropped
// geometry rather than an error.
func Translate(g *Geometry) geom.T {
	switch s := g.Shape().(type) {
	case PathsShape:
		mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)
		for _, path := range s.Paths {
			flat, ok := flatten(path)
			if !ok {
				return nil
			}
			if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
				zap.L().Debug("esri: rejecting path", zap.Error(err))
				return nil
			}
		}
		return mls

	case RingsShape:
		poly := geom.NewPolygon(geom.XY).SetSRID(srid)
		for _, ring := range s.Rings {
			flat, ok := flatten(ring)
			if !ok {
				return nil
			}
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				zap.L().Debug("esri: rejecting ring", zap.Error(err))
				return nil
			}
		}
		return poly

	case PointShape:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)

	default:
		return nil
	}
}

// flatten converts coordinate tuples to flat XY pairs. Z and M ordinates
// are dropped; a tuple with fewer than two ordinates fails the geometry.
func flatten(coords [][]float64) ([]float64, bool) {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		if len(c) < 2 {
			return nil, false
		}
		flat = append(flat, c[0], c[1])
	}
	return flat, true
}
