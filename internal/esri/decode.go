package esri

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/place-engineering/sitelayers/internal/model"
)

// srid is stamped on every translated geometry.
const srid = model.SRID

// Decode parses one query page.
func Decode(r io.Reader) (*QueryResponse, error) {
	var resp QueryResponse
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, eris.Wrap(err, "esri: decode response")
	}
	for i := range resp.Features {
		resp.Features[i].Attributes = normalizeNumbers(resp.Features[i].Attributes)
	}
	return &resp, nil
}

// normalizeNumbers converts json.Number attribute values to int64 when they
// are integral and to float64 otherwise.
func normalizeNumbers(attrs map[string]any) map[string]any {
	for k, v := range attrs {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			attrs[k] = i
			continue
		}
		if f, err := n.Float64(); err == nil {
			attrs[k] = f
			continue
		}
		attrs[k] = n.String()
	}
	return attrs
}

// Record translates a raw feature into a canonical record. Untranslatable
// geometry yields a record with nil Geometry.
func (f Feature) Record() model.FeatureRecord {
	attrs := f.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return model.FeatureRecord{
		Attributes: attrs,
		Geometry:   Translate(f.Geometry),
	}
}

// FieldDefs converts the declared schema into model fields.
func FieldDefs(fields []Field) []model.FieldDef {
	if len(fields) == 0 {
		return nil
	}
	out := make([]model.FieldDef, 0, len(fields))
	for _, f := range fields {
		if f.Type == FieldTypeGeometry {
			continue
		}
		out = append(out, model.FieldDef{Name: f.Name, Type: f.Type, Length: f.Length})
	}
	return out
}
