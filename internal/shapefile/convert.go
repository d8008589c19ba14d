package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"

	"github.com/place-engineering/sitelayers/internal/model"
)

// toShape converts a canonical geometry to a shape of the given type, or
// nil when the geometry is missing or of another type.
func toShape(g geom.T, want shp.ShapeType) shp.Shape {
	switch t := g.(type) {
	case *geom.Point:
		if want != shp.POINT {
			return nil
		}
		return &shp.Point{X: t.X(), Y: t.Y()}
	case *geom.LineString:
		if want != shp.POLYLINE {
			return nil
		}
		return shp.NewPolyLine([][]shp.Point{points(t.FlatCoords(), t.Stride())})
	case *geom.MultiLineString:
		if want != shp.POLYLINE || t.NumLineStrings() == 0 {
			return nil
		}
		parts := make([][]shp.Point, t.NumLineStrings())
		for i := range parts {
			ls := t.LineString(i)
			parts[i] = points(ls.FlatCoords(), ls.Stride())
		}
		return shp.NewPolyLine(parts)
	case *geom.Polygon:
		if want != shp.POLYGON || t.NumLinearRings() == 0 {
			return nil
		}
		parts := make([][]shp.Point, t.NumLinearRings())
		for i := range parts {
			r := t.LinearRing(i)
			parts[i] = points(r.FlatCoords(), r.Stride())
		}
		p := shp.Polygon(*shp.NewPolyLine(parts))
		return &p
	default:
		return nil
	}
}

func points(flat []float64, stride int) []shp.Point {
	if stride < 2 {
		stride = 2
	}
	pts := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts
}

// fromShape converts a shapefile shape back to a canonical geometry.
// Polygons keep their rings as stored; nil is returned for null or
// unsupported shapes.
func fromShape(s shp.Shape) geom.T {
	switch t := s.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{t.X, t.Y}).SetSRID(model.SRID)
	case *shp.PolyLine:
		flat, ends := partsFlat(t.Parts, t.Points)
		if len(ends) == 0 {
			return nil
		}
		return geom.NewMultiLineStringFlat(geom.XY, flat, ends).SetSRID(model.SRID)
	case *shp.Polygon:
		flat, ends := partsFlat(t.Parts, t.Points)
		if len(ends) == 0 {
			return nil
		}
		return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(model.SRID)
	default:
		return nil
	}
}

func partsFlat(parts []int32, pts []shp.Point) ([]float64, []int) {
	flat := make([]float64, 0, 2*len(pts))
	ends := make([]int, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(pts) {
			continue
		}
		for _, p := range pts[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		ends = append(ends, len(flat))
	}
	return flat, ends
}
