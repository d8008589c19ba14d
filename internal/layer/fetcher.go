// Package layer turns a layer request into a persisted artifact by failing
// over across ranked candidate endpoints.
package layer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/place-engineering/sitelayers/internal/arcgis"
	"github.com/place-engineering/sitelayers/internal/metrics"
	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/internal/schema"
)

// Source fetches every feature of one endpoint inside a bounding box.
type Source interface {
	FetchAll(ctx context.Context, ep model.EndpointRef, bbox model.BoundingBox) (*model.FeatureCollection, error)
}

// Persister writes one normalized collection and returns the artifact path
// and the number of features written.
type Persister interface {
	Persist(layer string, fc *model.FeatureCollection, cols []schema.Column) (path string, written int, err error)
}

// Fetcher fetches layers with endpoint failover.
type Fetcher struct {
	source    Source
	persister Persister
	log       *zap.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(source Source, persister Persister) *Fetcher {
	return &Fetcher{
		source:    source,
		persister: persister,
		log:       zap.L().With(zap.String("component", "layer")),
	}
}

// FetchLayer tries req.Candidates in order and persists the first non-empty
// collection. It returns nil when the layer has no candidates, every
// candidate fails or comes back empty, or persistence fails. No error
// escapes for a single layer.
func (f *Fetcher) FetchLayer(ctx context.Context, req model.LayerRequest, bbox model.BoundingBox) *model.LayerArtifact {
	log := f.log.With(zap.String("layer", req.Name))
	if len(req.Candidates) == 0 {
		log.Info("layer unavailable: no candidate endpoints")
		metrics.LayerUnavailable(req.Name, metrics.ReasonNoCandidates)
		return nil
	}

	attempt := func(ctx context.Context, ep model.EndpointRef) (*model.FeatureCollection, error) {
		start := time.Now()
		fc, err := f.source.FetchAll(ctx, ep, bbox)
		elapsed := time.Since(start).Seconds()
		switch {
		case err != nil:
			fields := []zap.Field{zap.String("endpoint", ep.URL), zap.Error(err)}
			var fe *arcgis.FetchError
			if errors.As(err, &fe) {
				fields = append(fields, zap.String("stage", string(fe.Stage)))
			}
			log.Warn("candidate failed", fields...)
			metrics.ObserveAttempt(req.Name, metrics.ResultFailure, elapsed)
		case fc.Empty():
			log.Info("candidate returned no features", zap.String("endpoint", ep.URL))
			metrics.ObserveAttempt(req.Name, metrics.ResultEmpty, elapsed)
		default:
			metrics.ObserveAttempt(req.Name, metrics.ResultSuccess, elapsed)
		}
		return fc, err
	}

	fc, idx, ok := FirstSuccess(ctx, req.Candidates, attempt, func(fc *model.FeatureCollection) bool {
		return !fc.Empty()
	})
	if !ok {
		log.Info("layer unavailable: all candidates exhausted", zap.Int("candidates", len(req.Candidates)))
		metrics.LayerUnavailable(req.Name, metrics.ReasonExhausted)
		return nil
	}

	repaired := 0
	for i := range fc.Features {
		g := fc.Features[i].Geometry
		if Valid(g) {
			continue
		}
		fc.Features[i].Geometry = Repair(g)
		repaired++
	}
	if repaired > 0 {
		log.Info("repaired invalid geometries", zap.Int("count", repaired))
	}

	path, written, err := f.persister.Persist(req.Name, fc, schema.Columns(fc))
	if err != nil {
		log.Error("persist layer", zap.String("endpoint", req.Candidates[idx].URL), zap.String("stage", "persist"), zap.Error(err))
		metrics.LayerUnavailable(req.Name, metrics.ReasonPersist)
		return nil
	}
	metrics.AddFeatures(req.Name, written)
	log.Info("layer saved",
		zap.String("endpoint", req.Candidates[idx].URL),
		zap.String("path", path),
		zap.Int("features", written),
	)
	return &model.LayerArtifact{Layer: req.Name, Path: path, Features: written}
}
