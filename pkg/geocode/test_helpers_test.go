package geocode

import (
	"net/http"
	"strings"
)

// serviceRouter sends requests for a known geocoding service to the
// httptest server standing in for it. Unmatched requests fail.
type serviceRouter map[string]string

func (r serviceRouter) RoundTrip(req *http.Request) (*http.Response, error) {
	raw := req.URL.String()
	for service, target := range r {
		if !strings.HasPrefix(raw, service) {
			continue
		}
		u, err := req.URL.Parse(target + strings.TrimPrefix(raw, service))
		if err != nil {
			return nil, err
		}
		out := req.Clone(req.Context())
		out.URL, out.Host = u, u.Host
		return http.DefaultTransport.RoundTrip(out)
	}
	return nil, &routeError{url: raw}
}

type routeError struct{ url string }

func (e *routeError) Error() string { return "no test service for " + e.url }
