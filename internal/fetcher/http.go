package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/place-engineering/sitelayers/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// Timeout bounds each individual request, including reading the body.
	Timeout time.Duration
	// Retry is applied beneath every Get for transient statuses and
	// network errors.
	Retry resilience.Policy
	// HostRate is the steady request rate allowed per host.
	HostRate rate.Limit
	// HostBurst is the burst allowed per host.
	HostBurst int
	// Transport overrides the pooled transport (tests).
	Transport http.RoundTripper
}

// hostLimiter paces requests to one host. A 429 halves the pace and each
// success wins back a fifth, never leaving [ceiling/4, ceiling].
type hostLimiter struct {
	host    string
	limiter *rate.Limiter

	mu      sync.Mutex
	ceiling rate.Limit
	current rate.Limit
}

func newHostLimiter(host string, r rate.Limit, burst int) *hostLimiter {
	return &hostLimiter{
		host:    host,
		limiter: rate.NewLimiter(r, burst),
		ceiling: r,
		current: r,
	}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

func (h *hostLimiter) relax() {
	h.scale(1.2)
}

func (h *hostLimiter) backOff() {
	next := h.scale(0.5)
	zap.L().Warn("fetcher: host answered 429, slowing down",
		zap.String("host", h.host), zap.Float64("rate", float64(next)))
}

func (h *hostLimiter) scale(factor float64) rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := min(max(h.current*rate.Limit(factor), h.ceiling/4), h.ceiling)
	if next != h.current {
		h.current = next
		h.limiter.SetLimit(next)
	}
	return next
}

func (h *hostLimiter) pace() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HTTPFetcher implements Fetcher over one pooled http.Client.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "sitelayers/1.0"
	}
	if opts.HostRate == 0 {
		opts.HostRate = 10
	}
	if opts.HostBurst == 0 {
		opts.HostBurst = 5
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			MaxConnsPerHost:     8,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*hostLimiter),
	}
}

// Client returns the underlying http.Client for collaborators that share
// the session.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

func (f *HTTPFetcher) limiterFor(host string) *hostLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = newHostLimiter(host, f.opts.HostRate, f.opts.HostBurst)
		f.limiters[host] = lim
	}
	return lim
}

// Get fetches rawURL with the retry policy. The body is read fully inside
// the attempt so a connection reset mid-body is retried like any other
// transient failure.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	lim := f.limiterFor(u.Host)

	policy := f.opts.Retry
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger("get", u.Host+u.Path)
	}

	body, err := resilience.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		if err := lim.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		return f.do(ctx, rawURL, lim)
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string, lim *hostLimiter) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			lim.backOff()
		}
		statusErr := &StatusError{URL: redact(req.URL), StatusCode: resp.StatusCode}
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}
	lim.relax()
	return data, nil
}

// redact drops the query string, which can be long and carries no
// diagnostic value beyond the endpoint path.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}
