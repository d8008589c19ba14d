package esri

import (
	"encoding/json"
	"strconv"
	"strings"
)

// QueryResponse is one page of an ArcGIS feature query. Features is nil when
// the container is absent, which callers treat as a malformed response.
type QueryResponse struct {
	Error                 *APIError `json:"error,omitempty"`
	Fields                []Field   `json:"fields,omitempty"`
	Features              []Feature `json:"features"`
	ExceededTransferLimit bool      `json:"exceededTransferLimit,omitempty"`
}

// APIError is the error payload ArcGIS returns with a 200 status.
type APIError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return strconv.Itoa(e.Code) + " " + e.Message + ": " + strings.Join(e.Details, "; ")
	}
	return strconv.Itoa(e.Code) + " " + e.Message
}

// Field is one entry of the response's declared schema.
type Field struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Alias  string `json:"alias,omitempty"`
	Length int    `json:"length,omitempty"`
}

// Feature is one raw feature.
type Feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *Geometry      `json:"geometry"`
}

// Geometry is the provider's wire geometry. Exactly one of Paths, Rings or
// X/Y is expected to be present.
type Geometry struct {
	X     json.RawMessage `json:"x,omitempty"`
	Y     json.RawMessage `json:"y,omitempty"`
	Paths [][][]float64   `json:"paths,omitempty"`
	Rings [][][]float64   `json:"rings,omitempty"`
}

// Field type markers used for DBF typing.
const (
	FieldTypeDate     = "esriFieldTypeDate"
	FieldTypeString   = "esriFieldTypeString"
	FieldTypeDouble   = "esriFieldTypeDouble"
	FieldTypeInteger  = "esriFieldTypeInteger"
	FieldTypeOID      = "esriFieldTypeOID"
	FieldTypeGeometry = "esriFieldTypeGeometry"
)
