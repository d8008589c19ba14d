package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAttempt(t *testing.T) {
	before := testutil.ToFloat64(fetchAttempts.WithLabelValues("parcels", ResultFailure))
	ObserveAttempt("parcels", ResultFailure, 0.2)
	after := testutil.ToFloat64(fetchAttempts.WithLabelValues("parcels", ResultFailure))
	if after-before != 1 {
		t.Fatalf("attempt counter delta=%v want 1", after-before)
	}
}

func TestAddFeatures(t *testing.T) {
	before := testutil.ToFloat64(featuresFetched.WithLabelValues("roads"))
	AddFeatures("roads", 42)
	if got := testutil.ToFloat64(featuresFetched.WithLabelValues("roads")) - before; got != 42 {
		t.Fatalf("features delta=%v want 42", got)
	}
}

func TestObserveGeocodeCache(t *testing.T) {
	before := testutil.ToFloat64(geocodeCache.WithLabelValues("memory", "hit"))
	ObserveGeocodeCache("memory", true)
	ObserveGeocodeCache("memory", false)
	if got := testutil.ToFloat64(geocodeCache.WithLabelValues("memory", "hit")) - before; got != 1 {
		t.Fatalf("hit delta=%v want 1", got)
	}
}

func TestMetricsHandler_Smoke(t *testing.T) {
	ObserveRun("done")
	LayerUnavailable("streams", ReasonExhausted)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"sitelayers_runs_total", "sitelayers_layers_unavailable_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics payload missing %s", name)
		}
	}
}
