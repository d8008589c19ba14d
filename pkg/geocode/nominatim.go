package geocode

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"
)

type nominatimPlace struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Hamlet  string `json:"hamlet"`
		County  string `json:"county"`
	} `json:"address"`
}

// locality returns the city (or town, village, hamlet) and county of the
// first Nominatim match.
func (g *geocoder) locality(ctx context.Context, address string) (city, county string, err error) {
	params := url.Values{
		"q":              {address},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	raw, err := g.get(ctx, g.nominatimURL+"?"+params.Encode())
	if err != nil {
		return "", "", err
	}

	var places []nominatimPlace
	if err := json.Unmarshal(raw, &places); err != nil {
		return "", "", eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return "", "", nil
	}
	a := places[0].Address
	for _, c := range []string{a.City, a.Town, a.Village, a.Hamlet} {
		if c != "" {
			city = c
			break
		}
	}
	return city, a.County, nil
}
