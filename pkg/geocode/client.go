// Package geocode resolves a one-line address to working-CRS coordinates via
// the ArcGIS World geocoder and to a city and county via Nominatim.
package geocode

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/place-engineering/sitelayers/internal/resilience"
)

const (
	defaultCandidatesURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer/findAddressCandidates"
	defaultNominatimURL  = "https://nominatim.openstreetmap.org/search"
	defaultSRID          = 2264
)

// ErrNotFound is returned when an address has no coordinate match.
var ErrNotFound = eris.New("geocode: address not found")

// Resolver resolves addresses.
type Resolver interface {
	Resolve(ctx context.Context, address string) (*Location, error)
}

// Location is a resolved address. City and County are empty when the
// locality lookup failed; the coordinates are still valid.
type Location struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	City   string  `json:"city,omitempty"`
	County string  `json:"county,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// HasLocality reports whether both city and county resolved.
func (l *Location) HasLocality() bool {
	return l != nil && l.City != "" && l.County != ""
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets the HTTP client for both providers.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by both providers.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithCandidatesURL overrides the findAddressCandidates endpoint.
func WithCandidatesURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.candidatesURL = u
		}
	}
}

// WithNominatimURL overrides the Nominatim search endpoint.
func WithNominatimURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.nominatimURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header; Nominatim rejects anonymous
// clients.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithSRID sets the output spatial reference for coordinates.
func WithSRID(srid int) Option {
	return func(g *geocoder) {
		g.srid = srid
	}
}

// WithRetry sets the retry policy applied to each provider request.
func WithRetry(p resilience.Policy) Option {
	return func(g *geocoder) {
		g.retry = p
	}
}

type geocoder struct {
	httpClient    *http.Client
	limiter       *rate.Limiter
	retry         resilience.Policy
	candidatesURL string
	nominatimURL  string
	userAgent     string
	srid          int
}

// NewClient creates a Resolver with the given options.
func NewClient(opts ...Option) Resolver {
	g := &geocoder{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		limiter:       rate.NewLimiter(1, 1),
		retry:         resilience.DefaultPolicy(),
		candidatesURL: defaultCandidatesURL,
		nominatimURL:  defaultNominatimURL,
		userAgent:     "sitelayers/1.0",
		srid:          defaultSRID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve geocodes the address. A failed locality lookup is logged and
// leaves City and County empty.
func (g *geocoder) Resolve(ctx context.Context, address string) (*Location, error) {
	loc, err := g.findCandidate(ctx, address)
	if err != nil {
		return nil, err
	}

	city, county, err := g.locality(ctx, address)
	if err != nil {
		zap.L().Warn("geocode: locality lookup failed", zap.String("address", address), zap.Error(err))
	}
	loc.City, loc.County = city, county
	return loc, nil
}

// get fetches reqURL under the retry policy and returns the body. Each
// attempt waits on the shared limiter; 5xx, 429 and dropped connections are
// retried, other statuses fail at once.
func (g *geocoder) get(ctx context.Context, reqURL string) ([]byte, error) {
	policy := g.retry
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger("geocode", reqHost(reqURL))
	}
	return resilience.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geocode: rate limit")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: build request")
		}
		req.Header.Set("User-Agent", g.userAgent)
		req.Header.Set("Accept", "application/json")
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			statusErr := eris.Errorf("geocode: %s returned status %d", req.URL.Host, resp.StatusCode)
			if resilience.IsTransientStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return nil, statusErr
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: read body")
		}
		return body, nil
	})
}

func reqHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host + u.Path
}
