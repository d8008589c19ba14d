package model

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// FieldDef is one attribute declared by a provider's result schema.
type FieldDef struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Length int    `json:"length,omitempty"`
}

// FeatureRecord is one fetched feature in canonical form. Geometry is one of
// *geom.Point, *geom.MultiLineString or *geom.Polygon, or nil when the
// provider geometry could not be translated.
type FeatureRecord struct {
	Attributes map[string]any
	Geometry   geom.T
}

// FeatureCollection accumulates the features of one endpoint attempt across
// all of its pages.
type FeatureCollection struct {
	Fields   []FieldDef
	Features []FeatureRecord
}

// Len returns the number of features.
func (fc *FeatureCollection) Len() int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}

// Empty reports whether the collection holds no features.
func (fc *FeatureCollection) Empty() bool {
	return fc.Len() == 0
}

// Field returns the declared field with the given name, if any.
func (fc *FeatureCollection) Field(name string) (FieldDef, bool) {
	for _, f := range fc.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Columns returns the ordered attribute names of the collection: declared
// fields in provider order, then any undeclared attribute keys sorted.
func (fc *FeatureCollection) Columns() []string {
	if fc == nil {
		return nil
	}
	seen := make(map[string]bool, len(fc.Fields))
	cols := make([]string, 0, len(fc.Fields))
	for _, f := range fc.Fields {
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		cols = append(cols, f.Name)
	}

	var extra []string
	for _, rec := range fc.Features {
		for k := range rec.Attributes {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}
