package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/place-engineering/sitelayers/internal/arcgis"
	"github.com/place-engineering/sitelayers/internal/fetcher"
	"github.com/place-engineering/sitelayers/internal/layer"
	"github.com/place-engineering/sitelayers/internal/metrics"
	"github.com/place-engineering/sitelayers/internal/pipeline"
	"github.com/place-engineering/sitelayers/internal/resilience"
	"github.com/place-engineering/sitelayers/internal/shapefile"
	"github.com/place-engineering/sitelayers/internal/sources"
	"github.com/place-engineering/sitelayers/internal/store"
	"github.com/place-engineering/sitelayers/pkg/geocode"
)

// runnerEnv holds the store and runner shared by the script and serve
// commands.
type runnerEnv struct {
	Store  store.Store // may be nil
	Runner *pipeline.Runner
}

// Close releases resources held by the environment.
func (e *runnerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initRunner wires one HTTP session, the locality table, the geocoder and
// the layer fetcher into a Runner. Progress lines go to out. Callers should
// defer env.Close().
func initRunner(ctx context.Context, out io.Writer) (*runnerEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	table, err := sources.LoadFile(cfg.Sources.File)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, eris.Wrap(err, "load locality table")
	}

	retry := resilience.DefaultPolicy()
	retry.MaxRetries = cfg.Fetch.MaxRetries
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retry:     retry,
	})

	var resolver geocode.Resolver = geocode.NewClient(
		geocode.WithHTTPClient(f.Client()),
		geocode.WithCandidatesURL(cfg.Geocode.CandidatesURL),
		geocode.WithNominatimURL(cfg.Geocode.NominatimURL),
		geocode.WithUserAgent(cfg.Fetch.UserAgent),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithSRID(cfg.Fetch.SRID),
		geocode.WithRetry(retry),
	)
	var cacheStore geocode.CacheStore
	if st != nil {
		cacheStore = st
	}
	resolver, err = geocode.NewCached(resolver, cfg.Geocode.CacheSize, cacheStore, metrics.ObserveGeocodeCache)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	progress := pipeline.NewProgress(out)
	client := arcgis.NewClient(f,
		arcgis.WithSRID(cfg.Fetch.SRID),
		arcgis.WithProgress(progress.Features),
	)
	layers := layer.NewFetcher(client, shapefile.NewWriter(cfg.Output.ResolvedDir()))

	runner := pipeline.New(resolver, table.WithPageSize(cfg.Fetch.PageSize), layers, st, progress, pipeline.Options{
		AddressSuffix: cfg.Geocode.AddressSuffix,
		Radius:        cfg.Fetch.Radius,
		ScriptPath:    cfg.Output.ScriptPath(),
		ImportProfile: cfg.Output.ImportProfile,
	})

	zap.L().Debug("runner initialized",
		zap.String("output_dir", cfg.Output.ResolvedDir()),
		zap.String("store", cfg.Store.Driver),
		zap.Float64("geocode_rps", cfg.Geocode.RateLimit),
	)
	return &runnerEnv{Store: st, Runner: runner}, nil
}
