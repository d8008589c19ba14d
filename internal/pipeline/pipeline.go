// Package pipeline runs one address through geocoding, layer fetching and
// script generation.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/place-engineering/sitelayers/internal/metrics"
	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/internal/script"
	"github.com/place-engineering/sitelayers/internal/store"
	"github.com/place-engineering/sitelayers/pkg/geocode"
)

// LayerFetcher fetches one layer; *layer.Fetcher implements it.
type LayerFetcher interface {
	FetchLayer(ctx context.Context, req model.LayerRequest, bbox model.BoundingBox) *model.LayerArtifact
}

// LayerTable maps a locality to its ordered layer requests; *sources.Table
// implements it.
type LayerTable interface {
	Lookup(city, county string) []model.LayerRequest
}

// Options are the per-process settings of a Runner.
type Options struct {
	// AddressSuffix is appended to every address before geocoding.
	AddressSuffix string
	Radius        float64
	ScriptPath    string
	ImportProfile string
}

// Request is one run.
type Request struct {
	Address string `json:"address"`
	// Download fetches layers; false writes a circle/zoom-only script.
	Download bool `json:"download"`
	// Layers restricts the run to the named layers; empty means all.
	Layers []string `json:"layers,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	RunID      string                `json:"run_id,omitempty"`
	Outcome    model.Outcome         `json:"outcome"`
	X          float64               `json:"x"`
	Y          float64               `json:"y"`
	City       string                `json:"city,omitempty"`
	County     string                `json:"county,omitempty"`
	Artifacts  []model.LayerArtifact `json:"artifacts"`
	ScriptPath string                `json:"script_path,omitempty"`
	Script     string                `json:"script,omitempty"`
}

// Runner executes runs sequentially.
type Runner struct {
	resolver geocode.Resolver
	table    LayerTable
	layers   LayerFetcher
	store    store.Store
	progress *Progress
	opts     Options
	log      *zap.Logger
}

// New creates a Runner. The store may be nil, in which case runs are not
// recorded. A nil progress discards progress lines.
func New(resolver geocode.Resolver, table LayerTable, layers LayerFetcher, st store.Store, progress *Progress, opts Options) *Runner {
	if progress == nil {
		progress = NewProgress(nil)
	}
	return &Runner{
		resolver: resolver,
		table:    table,
		layers:   layers,
		store:    st,
		progress: progress,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run resolves the address, fetches the locality's layers in table order and
// writes the import script. Address and locality failures are reported
// through Result.Outcome; the error is non-nil only for failures that stop
// the run, in which case the outcome is OutcomeFailed.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, eris.New("pipeline: address is required")
	}
	query := address + r.opts.AddressSuffix
	log := r.log.With(zap.String("address", query))
	log.Info("pipeline: starting run", zap.Bool("download", req.Download))

	start := time.Now()
	run := &model.RunRecord{Address: query, StartedAt: start.UTC()}
	result := &Result{Artifacts: []model.LayerArtifact{}}

	finish := func(outcome model.Outcome) {
		result.Outcome = outcome
		run.Outcome = outcome
		run.X, run.Y = result.X, result.Y
		run.City, run.County = result.City, result.County
		run.Layers = result.Artifacts
		run.ScriptPath = result.ScriptPath
		run.Duration = time.Since(start)
		r.record(ctx, run)
		result.RunID = run.ID
		metrics.ObserveRun(string(outcome))
		log.Info("pipeline: run finished",
			zap.String("outcome", string(outcome)),
			zap.Int("layers", len(result.Artifacts)),
			zap.Duration("duration", run.Duration),
		)
	}

	loc, err := r.resolver.Resolve(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			finish(model.OutcomeFailed)
			return result, eris.Wrap(ctxErr, "pipeline: geocode")
		}
		if !errors.Is(err, geocode.ErrNotFound) {
			log.Warn("pipeline: geocode failed", zap.Error(err))
			r.progress.Printf("Geocoding Error: %v", err)
		}
		r.progress.Printf("Address not found.")
		finish(model.OutcomeAddressNotFound)
		return result, nil
	}
	result.X, result.Y = loc.X, loc.Y
	result.City, result.County = loc.City, loc.County

	bbox, err := model.NewBoundingBox(loc.X, loc.Y, r.opts.Radius)
	if err != nil {
		finish(model.OutcomeFailed)
		return result, eris.Wrap(err, "pipeline: bounding box")
	}

	outcome := model.OutcomeDone
	if !loc.HasLocality() {
		r.progress.Printf("City/County not identified.")
		outcome = model.OutcomeLocalityUnresolved
	} else {
		r.progress.Printf("Location: %s, %s", loc.City, loc.County)
		r.progress.Printf("Coordinates: X=%v, Y=%v", loc.X, loc.Y)
		if req.Download {
			result.Artifacts = r.fetchLayers(ctx, loc, bbox, req.Layers)
		} else {
			r.progress.Printf("Skipping layer downloads per request.")
		}
	}
	if err := ctx.Err(); err != nil {
		finish(model.OutcomeFailed)
		return result, eris.Wrap(err, "pipeline: fetch layers")
	}

	result.Script = script.Generate(loc.X, loc.Y, result.Artifacts, script.Options{
		Radius:        r.opts.Radius,
		ImportProfile: r.opts.ImportProfile,
	})
	if err := script.WriteFile(r.opts.ScriptPath, result.Script); err != nil {
		r.progress.Printf("Failed to write script: %v", err)
		finish(model.OutcomeFailed)
		return result, err
	}
	result.ScriptPath = r.opts.ScriptPath
	r.progress.Printf("Script generated: %s", r.opts.ScriptPath)

	finish(outcome)
	return result, nil
}

func (r *Runner) fetchLayers(ctx context.Context, loc *geocode.Location, bbox model.BoundingBox, only []string) []model.LayerArtifact {
	requests := filterLayers(r.table.Lookup(loc.City, loc.County), only)
	artifacts := []model.LayerArtifact{}
	if len(requests) == 0 {
		r.progress.Printf("No data sources for this county.")
		return artifacts
	}
	for _, req := range requests {
		if ctx.Err() != nil {
			break
		}
		r.progress.Printf("Fetching layer: %s", req.Name)
		a := r.layers.FetchLayer(ctx, req, bbox)
		if a == nil {
			r.progress.Printf("No %s features found.", req.Name)
			continue
		}
		r.progress.Printf("Saved: %s", a.Path)
		artifacts = append(artifacts, *a)
	}
	return artifacts
}

// filterLayers keeps the requests named in only, preserving table order.
func filterLayers(requests []model.LayerRequest, only []string) []model.LayerRequest {
	if len(only) == 0 {
		return requests
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var out []model.LayerRequest
	for _, req := range requests {
		if want[strings.ToLower(req.Name)] {
			out = append(out, req)
		}
	}
	return out
}

func (r *Runner) record(ctx context.Context, run *model.RunRecord) {
	if r.store == nil {
		return
	}
	// a cancelled run is still recorded
	if err := r.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		r.log.Warn("pipeline: failed to record run", zap.Error(err))
	}
}
