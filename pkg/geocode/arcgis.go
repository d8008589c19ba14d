package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

type candidatesResponse struct {
	Candidates []struct {
		Address  string  `json:"address"`
		Score    float64 `json:"score"`
		Location struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		} `json:"location"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// findCandidate returns the best ArcGIS match in the working CRS.
func (g *geocoder) findCandidate(ctx context.Context, address string) (*Location, error) {
	params := url.Values{
		"SingleLine":   {address},
		"f":            {"json"},
		"outSR":        {strconv.Itoa(g.srid)},
		"maxLocations": {"1"},
	}
	raw, err := g.get(ctx, g.candidatesURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var body candidatesResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, eris.Wrap(err, "geocode: arcgis parse response")
	}
	if body.Error != nil {
		return nil, eris.Errorf("geocode: arcgis error %d: %s", body.Error.Code, body.Error.Message)
	}
	if len(body.Candidates) == 0 {
		return nil, ErrNotFound
	}
	c := body.Candidates[0]
	if c.Location.X == nil || c.Location.Y == nil {
		return nil, ErrNotFound
	}
	return &Location{X: *c.Location.X, Y: *c.Location.Y, Score: c.Score}, nil
}
