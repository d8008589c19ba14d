package geocode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/place-engineering/sitelayers/internal/resilience"
)

func newTestGeocoder(candidates, nominatim *httptest.Server) *geocoder {
	routes := serviceRouter{}
	if candidates != nil {
		routes[defaultCandidatesURL] = candidates.URL
	}
	if nominatim != nil {
		routes[defaultNominatimURL] = nominatim.URL
	}
	return &geocoder{
		httpClient:    &http.Client{Transport: routes},
		limiter:       rate.NewLimiter(rate.Inf, 1),
		retry:         resilience.Policy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		candidatesURL: defaultCandidatesURL,
		nominatimURL:  defaultNominatimURL,
		userAgent:     "test-agent",
		srid:          2264,
	}
}

func candidatesServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2264", q.Get("outSR"))
		assert.Equal(t, "1", q.Get("maxLocations"))
		assert.Equal(t, "json", q.Get("f"))
		assert.Contains(t, q.Get("SingleLine"), "Fayetteville St")
		_, _ = io.WriteString(w, body)
	}))
}

func nominatimServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

const addr = "222 W Hargett St Fayetteville St, Raleigh, NC"

func TestResolve_Full(t *testing.T) {
	cand := candidatesServer(t, `{"candidates":[{"address":"222 W Hargett St","score":100,"location":{"x":2105110.25,"y":737432.5}}]}`)
	defer cand.Close()
	nom := nominatimServer(t, http.StatusOK, `[{"address":{"city":"Raleigh","county":"Wake County"}}]`)
	defer nom.Close()

	loc, err := newTestGeocoder(cand, nom).Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.InDelta(t, 2105110.25, loc.X, 1e-9)
	assert.InDelta(t, 737432.5, loc.Y, 1e-9)
	assert.Equal(t, "Raleigh", loc.City)
	assert.Equal(t, "Wake County", loc.County)
	assert.True(t, loc.HasLocality())
}

func TestResolve_TownFallback(t *testing.T) {
	cand := candidatesServer(t, `{"candidates":[{"location":{"x":1,"y":2}}]}`)
	defer cand.Close()
	nom := nominatimServer(t, http.StatusOK, `[{"address":{"village":"Fuquay-Varina","county":"Wake County"}}]`)
	defer nom.Close()

	loc, err := newTestGeocoder(cand, nom).Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "Fuquay-Varina", loc.City)
}

func TestResolve_NotFound(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates":    `{"candidates":[]}`,
		"missing location": `{"candidates":[{"address":"x","location":{}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			cand := candidatesServer(t, body)
			defer cand.Close()

			_, err := newTestGeocoder(cand, nil).Resolve(context.Background(), addr)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestResolve_ArcGISError(t *testing.T) {
	cand := candidatesServer(t, `{"error":{"code":498,"message":"Invalid token"}}`)
	defer cand.Close()

	_, err := newTestGeocoder(cand, nil).Resolve(context.Background(), addr)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "Invalid token")
}

func TestResolve_LocalityFailureKeepsCoordinates(t *testing.T) {
	cand := candidatesServer(t, `{"candidates":[{"location":{"x":10,"y":20}}]}`)
	defer cand.Close()
	nom := nominatimServer(t, http.StatusForbidden, `blocked`)
	defer nom.Close()

	loc, err := newTestGeocoder(cand, nom).Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 10.0, loc.X)
	assert.False(t, loc.HasLocality())
}

func TestResolve_NoNominatimMatch(t *testing.T) {
	cand := candidatesServer(t, `{"candidates":[{"location":{"x":10,"y":20}}]}`)
	defer cand.Close()
	nom := nominatimServer(t, http.StatusOK, `[]`)
	defer nom.Close()

	loc, err := newTestGeocoder(cand, nom).Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.Empty(t, loc.City)
	assert.Empty(t, loc.County)
}

func TestResolve_RetriesUnavailableProvider(t *testing.T) {
	var candCalls, nomCalls atomic.Int32
	cand := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if candCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"location":{"x":2105110.25,"y":737432.5}}]}`)
	}))
	defer cand.Close()
	nom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if nomCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[{"address":{"city":"Raleigh","county":"Wake County"}}]`)
	}))
	defer nom.Close()

	loc, err := newTestGeocoder(cand, nom).Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 2105110.25, loc.X)
	assert.Equal(t, "Raleigh", loc.City)
	assert.Equal(t, int32(2), candCalls.Load())
	assert.Equal(t, int32(2), nomCalls.Load())
}

func TestResolve_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	cand := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer cand.Close()

	_, err := newTestGeocoder(cand, nil).Resolve(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_Options(t *testing.T) {
	r := NewClient(
		WithCandidatesURL("http://cand"),
		WithNominatimURL("http://nom"),
		WithUserAgent("ua"),
		WithRateLimit(5),
		WithSRID(4326),
		WithRetry(resilience.Policy{MaxRetries: 7}),
	)
	g, ok := r.(*geocoder)
	require.True(t, ok)
	assert.Equal(t, "http://cand", g.candidatesURL)
	assert.Equal(t, "http://nom", g.nominatimURL)
	assert.Equal(t, "ua", g.userAgent)
	assert.Equal(t, 4326, g.srid)
	assert.Equal(t, 5, g.limiter.Burst())
	assert.Equal(t, 7, g.retry.MaxRetries)
}
