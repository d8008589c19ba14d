package model

import "strings"

// DefaultPageSize is the number of features requested per page.
const DefaultPageSize = 2000

// EncodingEsriJSON is the only query dialect spoken by configured endpoints:
// ArcGIS REST query responses with f=json geometry.
const EncodingEsriJSON = "esri-json"

// EndpointRef identifies one candidate data provider for a layer.
type EndpointRef struct {
	URL      string `json:"url" yaml:"url"`
	PageSize int    `json:"page_size,omitempty" yaml:"page_size"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding"`
}

// Limit returns the page size, falling back to DefaultPageSize.
func (e EndpointRef) Limit() int {
	if e.PageSize > 0 {
		return e.PageSize
	}
	return DefaultPageSize
}

// LayerRequest names a layer and its ranked candidate endpoints. An empty
// candidate list means the layer is unavailable for the locality.
type LayerRequest struct {
	Name       string        `json:"name"`
	Candidates []EndpointRef `json:"candidates"`
}

// LayerArtifact is the persisted result of one successfully fetched layer.
type LayerArtifact struct {
	Layer    string `json:"layer"`
	Path     string `json:"path"`
	Features int    `json:"features"`
}

// IsTopography reports whether the artifact holds elevation contours.
func (a LayerArtifact) IsTopography() bool {
	return IsTopographyLayer(a.Layer)
}

// IsTopographyLayer reports whether a layer name denotes topography.
func IsTopographyLayer(name string) bool {
	return strings.Contains(strings.ToLower(name), "topo")
}
