package shapefile

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/place-engineering/sitelayers/internal/model"
)

// Read loads a shapefile back into a collection. Attribute values are the
// trimmed DBF text; blank values are omitted.
func Read(path string) (*model.FeatureCollection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fc := &model.FeatureCollection{Fields: make([]model.FieldDef, len(fields))}
	for i, f := range fields {
		fc.Fields[i] = model.FieldDef{
			Name:   strings.TrimRight(f.String(), "\x00"),
			Type:   string(f.Fieldtype),
			Length: int(f.Size),
		}
	}

	for reader.Next() {
		_, shape := reader.Shape()
		attrs := make(map[string]any, len(fields))
		for i, f := range fc.Fields {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				attrs[f.Name] = val
			}
		}
		fc.Features = append(fc.Features, model.FeatureRecord{
			Attributes: attrs,
			Geometry:   fromShape(shape),
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", path)
	}
	return fc, nil
}
