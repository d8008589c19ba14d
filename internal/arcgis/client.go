// Package arcgis pages through ArcGIS REST feature-service query endpoints.
package arcgis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/place-engineering/sitelayers/internal/esri"
	"github.com/place-engineering/sitelayers/internal/fetcher"
	"github.com/place-engineering/sitelayers/internal/model"
)

// Stage identifies where a fetch attempt failed.
type Stage string

const (
	StageTransport Stage = "transport"
	StageStatus    Stage = "status"
	StageDecode    Stage = "decode"
	StageAPI       Stage = "api"
)

// FetchError is returned when an endpoint attempt fails. Features fetched
// before the failing page are discarded.
type FetchError struct {
	Stage    Stage
	Endpoint string
	Offset   int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("arcgis: %s failure at offset %d of %s: %v", e.Stage, e.Offset, e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ProgressFunc observes the running feature count after each page.
type ProgressFunc func(endpoint string, total int)

// Client executes paginated envelope queries.
type Client struct {
	fetcher  fetcher.Fetcher
	srid     int
	progress ProgressFunc
	log      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSRID overrides the working spatial reference.
func WithSRID(srid int) Option {
	return func(c *Client) { c.srid = srid }
}

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) { c.progress = fn }
}

// NewClient creates a Client over the shared fetcher.
func NewClient(f fetcher.Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher: f,
		srid:    model.SRID,
		log:     zap.L().With(zap.String("component", "arcgis")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchAll retrieves every feature intersecting bbox from one endpoint,
// starting at offset 0 and advancing by the endpoint's page size. It stops
// on an empty page or after a short page. Any failing page fails the whole
// attempt.
func (c *Client) FetchAll(ctx context.Context, ep model.EndpointRef, bbox model.BoundingBox) (*model.FeatureCollection, error) {
	if ep.Encoding != "" && ep.Encoding != model.EncodingEsriJSON {
		return nil, &FetchError{Stage: StageAPI, Endpoint: ep.URL, Err: eris.Errorf("unsupported encoding %q", ep.Encoding)}
	}
	pageSize := ep.Limit()
	fc := &model.FeatureCollection{}

	for offset := 0; ; offset += pageSize {
		resp, err := c.page(ctx, ep.URL, bbox, offset)
		if err != nil {
			return nil, err
		}
		if fc.Fields == nil {
			fc.Fields = esri.FieldDefs(resp.Fields)
		}

		if len(resp.Features) == 0 {
			return fc, nil
		}
		for _, f := range resp.Features {
			fc.Features = append(fc.Features, f.Record())
		}
		if c.progress != nil {
			c.progress(ep.URL, fc.Len())
		}
		c.log.Debug("page fetched",
			zap.String("endpoint", ep.URL),
			zap.Int("offset", offset),
			zap.Int("page", len(resp.Features)),
			zap.Int("total", fc.Len()),
		)
		if len(resp.Features) < pageSize {
			return fc, nil
		}
	}
}

func (c *Client) page(ctx context.Context, endpoint string, bbox model.BoundingBox, offset int) (*esri.QueryResponse, error) {
	target, err := QueryURL(endpoint, bbox, c.srid, offset)
	if err != nil {
		return nil, &FetchError{Stage: StageTransport, Endpoint: endpoint, Offset: offset, Err: err}
	}

	body, err := c.fetcher.Get(ctx, target)
	if err != nil {
		stage := StageTransport
		var statusErr *fetcher.StatusError
		if errors.As(err, &statusErr) {
			stage = StageStatus
		}
		return nil, &FetchError{Stage: stage, Endpoint: endpoint, Offset: offset, Err: err}
	}
	defer body.Close() //nolint:errcheck

	resp, err := esri.Decode(body)
	if err != nil {
		return nil, &FetchError{Stage: StageDecode, Endpoint: endpoint, Offset: offset, Err: err}
	}
	if resp.Error != nil {
		return nil, &FetchError{Stage: StageAPI, Endpoint: endpoint, Offset: offset, Err: resp.Error}
	}
	if resp.Features == nil {
		return nil, &FetchError{Stage: StageDecode, Endpoint: endpoint, Offset: offset, Err: eris.New("response has no features container")}
	}
	return resp, nil
}

// QueryURL builds the envelope query for one page.
func QueryURL(endpoint string, bbox model.BoundingBox, srid, offset int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", eris.Wrapf(err, "arcgis: parse endpoint %q", endpoint)
	}
	sr := strconv.Itoa(srid)
	q := u.Query()
	q.Set("geometry", bbox.Envelope())
	q.Set("geometryType", "esriGeometryEnvelope")
	q.Set("inSR", sr)
	q.Set("outSR", sr)
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("outFields", "*")
	q.Set("returnGeometry", "true")
	q.Set("resultOffset", strconv.Itoa(offset))
	q.Set("f", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
