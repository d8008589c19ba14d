// Package shapefile persists feature collections as ESRI Shapefiles.
package shapefile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/internal/schema"
)

// prj2264 is the ESRI WKT for NAD83 / North Carolina (ftUS).
const prj2264 = `PROJCS["NAD_1983_StatePlane_North_Carolina_FIPS_3200_Feet",` +
	`GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],` +
	`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic"],` +
	`PARAMETER["False_Easting",2000000.002616666],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-79.0],` +
	`PARAMETER["Standard_Parallel_1",34.33333333333334],PARAMETER["Standard_Parallel_2",36.16666666666666],` +
	`PARAMETER["Latitude_Of_Origin",33.75],UNIT["Foot_US",0.3048006096012192]]`

// placeholderField is written when a collection carries no attributes; the
// DBF needs at least one column.
const placeholderField = "id"

var sidecars = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// Writer writes one shapefile per layer into Dir.
type Writer struct {
	Dir string
	log *zap.Logger
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, log: zap.L().With(zap.String("component", "shapefile"))}
}

// Path returns the .shp path for a layer.
func (w *Writer) Path(layer string) string {
	return filepath.Join(w.Dir, fileName(layer)+".shp")
}

// Persist writes fc as <Dir>/<layer>.shp with its .shx, .dbf, .prj and .cpg
// companions, overwriting any previous files. The shape type follows the
// first non-nil geometry; records with nil geometry or a different type are
// skipped. Writing zero records is an error and leaves no files behind.
func (w *Writer) Persist(layer string, fc *model.FeatureCollection, cols []schema.Column) (string, int, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", 0, eris.Wrapf(err, "shapefile: create dir %s", w.Dir)
	}
	shapeType, ok := shapeTypeOf(fc)
	if !ok {
		return "", 0, eris.Errorf("shapefile: layer %s has no writable geometry", layer)
	}

	path := w.Path(layer)
	written, skipped, err := write(path, shapeType, fc, cols)
	if err == nil && written == 0 {
		err = eris.Errorf("shapefile: layer %s wrote no records", layer)
	}
	if err == nil {
		err = writeSidecars(path)
	}
	if err != nil {
		removeAll(path)
		return "", 0, err
	}
	if skipped > 0 {
		w.log.Info("skipped records without writable geometry",
			zap.String("layer", layer),
			zap.Int("skipped", skipped),
		)
	}
	return path, written, nil
}

func write(path string, shapeType shp.ShapeType, fc *model.FeatureCollection, cols []schema.Column) (written, skipped int, err error) {
	out, err := shp.Create(path, shapeType)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "shapefile: create %s", path)
	}
	defer out.Close()

	if err := out.SetFields(dbfFields(cols)); err != nil {
		return 0, 0, eris.Wrapf(err, "shapefile: set fields for %s", path)
	}

	for _, rec := range fc.Features {
		shape := toShape(rec.Geometry, shapeType)
		if shape == nil {
			skipped++
			continue
		}
		row := int(out.Write(shape))
		if len(cols) == 0 {
			if err := out.WriteAttribute(row, 0, row+1); err != nil {
				return written, skipped, eris.Wrapf(err, "shapefile: write %s row %d", path, row)
			}
		}
		for i, col := range cols {
			v, ok := col.Value(rec.Attributes[col.Source])
			if !ok {
				continue
			}
			if err := out.WriteAttribute(row, i, v); err != nil {
				return written, skipped, eris.Wrapf(err, "shapefile: write %s row %d column %s", path, row, col.Name)
			}
		}
		written++
	}
	return written, skipped, nil
}

func dbfFields(cols []schema.Column) []shp.Field {
	if len(cols) == 0 {
		return []shp.Field{shp.NumberField(placeholderField, 10)}
	}
	fields := make([]shp.Field, len(cols))
	for i, c := range cols {
		switch c.Kind {
		case schema.KindInteger:
			fields[i] = shp.NumberField(c.Name, c.Size)
		case schema.KindFloat:
			fields[i] = shp.FloatField(c.Name, c.Size, c.Decimals)
		case schema.KindDate:
			fields[i] = shp.DateField(c.Name)
		default:
			fields[i] = shp.StringField(c.Name, c.Size)
		}
	}
	return fields
}

func shapeTypeOf(fc *model.FeatureCollection) (shp.ShapeType, bool) {
	for _, rec := range fc.Features {
		switch rec.Geometry.(type) {
		case *geom.Point:
			return shp.POINT, true
		case *geom.LineString, *geom.MultiLineString:
			return shp.POLYLINE, true
		case *geom.Polygon:
			return shp.POLYGON, true
		}
	}
	return shp.NULL, false
}

func writeSidecars(shpPath string) error {
	base := strings.TrimSuffix(shpPath, ".shp")
	if err := os.WriteFile(base+".prj", []byte(prj2264), 0o644); err != nil {
		return eris.Wrap(err, "shapefile: write prj")
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return eris.Wrap(err, "shapefile: write cpg")
	}
	return nil
}

func removeAll(shpPath string) {
	base := strings.TrimSuffix(shpPath, ".shp")
	for _, ext := range sidecars {
		_ = os.Remove(base + ext)
	}
}

// fileName keeps a layer name inside the output directory.
func fileName(layer string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(layer))
	if name == "" || name == "." || name == ".." {
		return "layer"
	}
	return name
}
