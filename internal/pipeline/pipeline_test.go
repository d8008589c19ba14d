package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/place-engineering/sitelayers/internal/arcgis"
	"github.com/place-engineering/sitelayers/internal/fetcher"
	"github.com/place-engineering/sitelayers/internal/layer"
	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/internal/resilience"
	"github.com/place-engineering/sitelayers/internal/script"
	"github.com/place-engineering/sitelayers/internal/shapefile"
	"github.com/place-engineering/sitelayers/internal/sources"
	"github.com/place-engineering/sitelayers/pkg/geocode"
)

const wakeAddress = "222 W Hargett St"

func wakeLocation() *geocode.Location {
	return &geocode.Location{X: 2105000, Y: 737000, City: "Raleigh", County: "Wake County", Score: 100}
}

func wakeLayers() staticTable {
	return staticTable{
		"Wake County": {
			{Name: "parcels", Candidates: []model.EndpointRef{{URL: "https://example.test/parcels"}}},
			{Name: "topo", Candidates: []model.EndpointRef{{URL: "https://example.test/topo"}}},
			{Name: "roads", Candidates: []model.EndpointRef{{URL: "https://example.test/roads"}}},
		},
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		AddressSuffix: ", NC",
		Radius:        5000,
		ScriptPath:    filepath.Join(t.TempDir(), "circle_layers.scr"),
		ImportProfile: "gis data.ipf",
	}
}

func layerNamed(name string) any {
	return mock.MatchedBy(func(req model.LayerRequest) bool { return req.Name == name })
}

func TestRun_Done(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, wakeAddress+", NC").Return(wakeLocation(), nil)

	layers := &mockLayerFetcher{}
	layers.On("FetchLayer", ctx, layerNamed("parcels"), mock.Anything).
		Return(&model.LayerArtifact{Layer: "parcels", Path: "/out/parcels.shp", Features: 10})
	layers.On("FetchLayer", ctx, layerNamed("topo"), mock.Anything).
		Return(&model.LayerArtifact{Layer: "topo", Path: "/out/topo.shp", Features: 5})
	layers.On("FetchLayer", ctx, layerNamed("roads"), mock.Anything).Return(nil)

	st := &mockStore{}
	st.On("SaveRun", mock.Anything, mock.MatchedBy(func(run *model.RunRecord) bool {
		run.ID = "run-1"
		return run.Outcome == model.OutcomeDone && len(run.Layers) == 2 && run.City == "Raleigh"
	})).Return(nil)

	var out bytes.Buffer
	opts := testOptions(t)
	r := New(resolver, wakeLayers(), layers, st, NewProgress(&out), opts)

	res, err := r.Run(ctx, Request{Address: "  " + wakeAddress + " ", Download: true})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeDone, res.Outcome)
	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, "parcels", res.Artifacts[0].Layer)
	assert.Equal(t, "topo", res.Artifacts[1].Layer)
	assert.Equal(t, opts.ScriptPath, res.ScriptPath)

	data, err := os.ReadFile(opts.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, res.Script, string(data))

	// topo is imported first even though the table lists parcels first
	lines := strings.Split(strings.TrimSpace(res.Script), "\n")
	assert.Equal(t, []string{"CIRCLE", "2105000,737000", "5000", "ZOOM", "C", "2105000,737000", "10000"}, lines[:7])
	assert.Equal(t, "/out/topo.shp", lines[9])
	assert.Equal(t, script.TopoHook, lines[13])
	assert.Equal(t, "/out/parcels.shp", lines[16])
	assert.Equal(t, script.LinetypeHook, lines[len(lines)-1])

	progress := out.String()
	assert.Contains(t, progress, "Location: Raleigh, Wake County")
	assert.Contains(t, progress, "Fetching layer: parcels")
	assert.Contains(t, progress, "Saved: /out/parcels.shp")
	assert.Contains(t, progress, "No roads features found.")
	assert.Contains(t, progress, "Script generated: ")

	resolver.AssertExpectations(t)
	layers.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestRun_LayerFilter(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(wakeLocation(), nil)

	layers := &mockLayerFetcher{}
	layers.On("FetchLayer", ctx, layerNamed("roads"), mock.Anything).
		Return(&model.LayerArtifact{Layer: "roads", Path: "/out/roads.shp", Features: 1})
	layers.On("FetchLayer", ctx, layerNamed("parcels"), mock.Anything).
		Return(&model.LayerArtifact{Layer: "parcels", Path: "/out/parcels.shp", Features: 1})

	r := New(resolver, wakeLayers(), layers, nil, nil, testOptions(t))
	res, err := r.Run(ctx, Request{Address: wakeAddress, Download: true, Layers: []string{"ROADS", "parcels", "wetlands"}})
	require.NoError(t, err)

	require.Len(t, res.Artifacts, 2)
	// table order wins over request order
	assert.Equal(t, "parcels", res.Artifacts[0].Layer)
	assert.Equal(t, "roads", res.Artifacts[1].Layer)
	layers.AssertNotCalled(t, "FetchLayer", ctx, layerNamed("topo"), mock.Anything)
}

func TestRun_AddressNotFound(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, "nowhere, NC").Return(nil, geocode.ErrNotFound)

	st := &mockStore{}
	st.On("SaveRun", mock.Anything, mock.MatchedBy(func(run *model.RunRecord) bool {
		return run.Outcome == model.OutcomeAddressNotFound
	})).Return(nil)

	var out bytes.Buffer
	opts := testOptions(t)
	r := New(resolver, wakeLayers(), &mockLayerFetcher{}, st, NewProgress(&out), opts)

	res, err := r.Run(ctx, Request{Address: "nowhere", Download: true})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAddressNotFound, res.Outcome)
	assert.Empty(t, res.ScriptPath)
	assert.Contains(t, out.String(), "Address not found.")
	assert.NotContains(t, out.String(), "Geocoding Error")

	_, statErr := os.Stat(opts.ScriptPath)
	assert.True(t, os.IsNotExist(statErr), "no script for an unresolved address")
	st.AssertExpectations(t)
}

func TestRun_GeocodeTransportErrorIsNotFound(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(nil, errors.New("connection refused"))

	var out bytes.Buffer
	r := New(resolver, wakeLayers(), &mockLayerFetcher{}, nil, NewProgress(&out), testOptions(t))
	res, err := r.Run(ctx, Request{Address: wakeAddress})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAddressNotFound, res.Outcome)
	assert.Contains(t, out.String(), "Geocoding Error: connection refused")
}

func TestRun_LocalityUnresolved(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(&geocode.Location{X: 100, Y: 200}, nil)

	layers := &mockLayerFetcher{}
	var out bytes.Buffer
	opts := testOptions(t)
	r := New(resolver, wakeLayers(), layers, nil, NewProgress(&out), opts)

	res, err := r.Run(ctx, Request{Address: wakeAddress, Download: true})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeLocalityUnresolved, res.Outcome)
	assert.Empty(t, res.Artifacts)
	assert.Contains(t, out.String(), "City/County not identified.")

	// circle and zoom only
	want := script.Generate(100, 200, nil, script.Options{Radius: 5000, ImportProfile: "gis data.ipf"})
	data, err := os.ReadFile(opts.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
	layers.AssertNotCalled(t, "FetchLayer", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_NoDownload(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(wakeLocation(), nil)

	layers := &mockLayerFetcher{}
	var out bytes.Buffer
	r := New(resolver, wakeLayers(), layers, nil, NewProgress(&out), testOptions(t))

	res, err := r.Run(ctx, Request{Address: wakeAddress, Download: false})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDone, res.Outcome)
	assert.Empty(t, res.Artifacts)
	assert.Contains(t, out.String(), "Skipping layer downloads per request.")
	layers.AssertNotCalled(t, "FetchLayer", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ScriptCenteredOnGeocodedPoint(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).
		Return(&geocode.Location{X: 2093284.303, Y: 737432.517, City: "Raleigh", County: "Wake County"}, nil)

	opts := testOptions(t)
	opts.Radius = 1234.567
	r := New(resolver, wakeLayers(), &mockLayerFetcher{}, nil, nil, opts)

	res, err := r.Run(ctx, Request{Address: wakeAddress})
	require.NoError(t, err)
	lines := strings.Split(res.Script, "\n")
	assert.Equal(t, "2093284.303,737432.517", lines[1])
	assert.Equal(t, "2093284.303,737432.517", lines[5])
}

func TestRun_NoSourcesForCounty(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).
		Return(&geocode.Location{X: 1, Y: 2, City: "Boone", County: "Watauga County"}, nil)

	var out bytes.Buffer
	r := New(resolver, wakeLayers(), &mockLayerFetcher{}, nil, NewProgress(&out), testOptions(t))
	res, err := r.Run(ctx, Request{Address: "1 King St", Download: true})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDone, res.Outcome)
	assert.Contains(t, out.String(), "No data sources for this county.")
}

func TestRun_StoreFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(wakeLocation(), nil)

	st := &mockStore{}
	st.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	r := New(resolver, wakeLayers(), &mockLayerFetcher{}, st, nil, testOptions(t))
	res, err := r.Run(ctx, Request{Address: wakeAddress})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDone, res.Outcome)
	assert.Empty(t, res.RunID)
}

func TestRun_ScriptWriteFailure(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(wakeLocation(), nil)

	// a regular file where the output directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	opts := testOptions(t)
	opts.ScriptPath = filepath.Join(blocker, "circle_layers.scr")

	r := New(resolver, wakeLayers(), &mockLayerFetcher{}, nil, nil, opts)
	res, err := r.Run(ctx, Request{Address: wakeAddress})
	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, res.Outcome.ExitCode())
}

func TestRun_EmptyAddress(t *testing.T) {
	r := New(&mockResolver{}, wakeLayers(), &mockLayerFetcher{}, nil, nil, testOptions(t))
	_, err := r.Run(context.Background(), Request{Address: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is required")
}

func TestRun_CancelledDuringGeocode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(nil, context.Canceled)

	r := New(resolver, wakeLayers(), &mockLayerFetcher{}, nil, nil, testOptions(t))
	res, err := r.Run(ctx, Request{Address: wakeAddress})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.OutcomeFailed, res.Outcome)
}

func TestFilterLayers(t *testing.T) {
	reqs := []model.LayerRequest{{Name: "topo"}, {Name: "parcels"}, {Name: "stream"}}
	assert.Equal(t, reqs, filterLayers(reqs, nil))
	assert.Equal(t, []model.LayerRequest{{Name: "topo"}, {Name: "stream"}}, filterLayers(reqs, []string{" Stream", "TOPO"}))
	assert.Empty(t, filterLayers(reqs, []string{"wetlands"}))
}

func TestProgress_Features(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out)
	p.Features("https://example.test/q", 2000)
	p.Features("https://example.test/q", 2150)
	assert.Equal(t, "   ... 2000 items found\n   ... 2150 items found\n", out.String())
}

const endToEndTable = `
rules:
  - name: wake
    county: wake
    layers:
      - name: topo
        candidates:
          - url: %TOPO%
      - name: parcels
        candidates:
          - url: %DOWN%
          - url: %PARCELS%
`

func TestRun_EndToEnd(t *testing.T) {
	topo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[{"attributes":{"ELEVATION":310},"geometry":{"paths":[[[2104000,736000],[2106000,738000]]]}}]}`))
	}))
	defer topo.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	parcels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[{"attributes":{"PIN_NUM":"1703","OWNER":"CITY OF RALEIGH"},
			"geometry":{"rings":[[[2104900,736900],[2104900,737100],[2105100,737100],[2105100,736900],[2104900,736900]]]}}]}`))
	}))
	defer parcels.Close()

	yml := strings.NewReplacer("%TOPO%", topo.URL, "%DOWN%", down.URL, "%PARCELS%", parcels.URL).Replace(endToEndTable)
	table, err := sources.Load(strings.NewReader(yml))
	require.NoError(t, err)

	ctx := context.Background()
	resolver := &mockResolver{}
	resolver.On("Resolve", ctx, mock.Anything).Return(wakeLocation(), nil)

	outDir := t.TempDir()
	var out bytes.Buffer
	progress := NewProgress(&out)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Retry:     resilience.Policy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		HostRate:  1000,
		HostBurst: 100,
	})
	layers := layer.NewFetcher(arcgis.NewClient(f, arcgis.WithProgress(progress.Features)), shapefile.NewWriter(outDir))

	opts := testOptions(t)
	opts.ScriptPath = filepath.Join(outDir, "circle_layers.scr")
	res, err := New(resolver, table, layers, nil, progress, opts).Run(ctx, Request{Address: wakeAddress, Download: true})
	require.NoError(t, err)
	require.Equal(t, model.OutcomeDone, res.Outcome)
	require.Len(t, res.Artifacts, 2)

	for _, a := range res.Artifacts {
		_, err := os.Stat(a.Path)
		require.NoError(t, err, a.Layer)
		assert.Equal(t, 1, a.Features)
	}
	fc, err := shapefile.Read(res.Artifacts[1].Path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "CITY OF RALEIGH", fc.Features[0].Attributes["owner"])

	assert.Contains(t, out.String(), "   ... 1 items found")
	assert.True(t, strings.HasSuffix(res.Script, script.LinetypeHook+"\n"))
}
