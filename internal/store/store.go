// Package store persists run history and the geocode cache.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/pkg/geocode"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Outcome model.Outcome `json:"outcome,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	Offset  int           `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 20
	}
	return f.Limit
}

// Store defines the persistence interface for runs and geocodes.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *model.RunRecord) error
	GetRun(ctx context.Context, id string) (*model.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error)

	// Geocode cache
	geocode.CacheStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func marshalLayers(layers []model.LayerArtifact) (string, error) {
	if layers == nil {
		layers = []model.LayerArtifact{}
	}
	data, err := json.Marshal(layers)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal layers")
	}
	return string(data), nil
}

func unmarshalLayers(data string) ([]model.LayerArtifact, error) {
	var layers []model.LayerArtifact
	if data == "" {
		return layers, nil
	}
	if err := json.Unmarshal([]byte(data), &layers); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal layers")
	}
	return layers, nil
}

func durationMillis(d time.Duration) int64 {
	return d.Milliseconds()
}

func millisDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
