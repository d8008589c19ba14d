// Package sources holds the static locality table that maps a resolved
// city and county to the layers and ranked endpoints to fetch.
package sources

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/place-engineering/sitelayers/internal/model"
)

//go:embed sources.yaml
var embedded []byte

// Rule maps a locality match to its layers.
type Rule struct {
	Name    string               `yaml:"name"`
	County  string               `yaml:"county"`
	City    string               `yaml:"city"`
	Default bool                 `yaml:"default"`
	Layers  []model.LayerRequest `yaml:"layers"`
}

type document struct {
	Rules []Rule `yaml:"rules"`
}

// Table is an immutable, ordered rule set. The zero value matches nothing.
type Table struct {
	rules []Rule
	def   *Rule
}

// Load parses a table from YAML. Rules need a county unless marked default,
// and at most one default is allowed.
func Load(r io.Reader) (*Table, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(false)
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "sources: decode table")
	}

	t := &Table{}
	for i, rule := range doc.Rules {
		rule.County = strings.ToLower(strings.TrimSpace(rule.County))
		rule.City = strings.ToLower(strings.TrimSpace(rule.City))
		for j, l := range rule.Layers {
			if strings.TrimSpace(l.Name) == "" {
				return nil, eris.Errorf("sources: rule %d (%s) layer %d has no name", i, rule.Name, j)
			}
			for k, c := range l.Candidates {
				if c.URL == "" {
					return nil, eris.Errorf("sources: rule %s layer %s candidate %d has no url", rule.Name, l.Name, k)
				}
			}
		}
		if rule.Default {
			if t.def != nil {
				return nil, eris.Errorf("sources: more than one default rule (%s, %s)", t.def.Name, rule.Name)
			}
			d := rule
			t.def = &d
			continue
		}
		if rule.County == "" {
			return nil, eris.Errorf("sources: rule %d (%s) has no county", i, rule.Name)
		}
		t.rules = append(t.rules, rule)
	}
	return t, nil
}

// LoadFile is Load over a file path; an empty path loads the embedded table.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sources: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Load(f)
}

// Default returns the embedded table.
func Default() (*Table, error) {
	return Load(bytes.NewReader(embedded))
}

// Match returns the rule for a locality. Empty city or county matches
// nothing, not even the default.
func (t *Table) Match(city, county string) (Rule, bool) {
	city = strings.ToLower(strings.TrimSpace(city))
	county = strings.ToLower(strings.TrimSpace(county))
	if t == nil || city == "" || county == "" {
		return Rule{}, false
	}
	for _, r := range t.rules {
		if !strings.Contains(county, r.County) {
			continue
		}
		if r.City != "" && !strings.Contains(city, r.City) {
			continue
		}
		return r, true
	}
	if t.def != nil {
		return *t.def, true
	}
	return Rule{}, false
}

// Lookup returns copies of the layer requests for a locality, in fetch
// order.
func (t *Table) Lookup(city, county string) []model.LayerRequest {
	r, ok := t.Match(city, county)
	if !ok {
		return nil
	}
	return cloneLayers(r.Layers)
}

// Rules returns copies of every rule in evaluation order, default last.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, 0, len(t.rules)+1)
	for _, r := range t.rules {
		r.Layers = cloneLayers(r.Layers)
		out = append(out, r)
	}
	if t.def != nil {
		d := *t.def
		d.Layers = cloneLayers(d.Layers)
		out = append(out, d)
	}
	return out
}

// WithPageSize returns a copy of the table in which candidates without an
// explicit page size use n.
func (t *Table) WithPageSize(n int) *Table {
	if t == nil || n <= 0 {
		return t
	}
	apply := func(r Rule) Rule {
		r.Layers = cloneLayers(r.Layers)
		for i := range r.Layers {
			for j := range r.Layers[i].Candidates {
				if r.Layers[i].Candidates[j].PageSize == 0 {
					r.Layers[i].Candidates[j].PageSize = n
				}
			}
		}
		return r
	}
	out := &Table{rules: make([]Rule, len(t.rules))}
	for i, r := range t.rules {
		out.rules[i] = apply(r)
	}
	if t.def != nil {
		d := apply(*t.def)
		out.def = &d
	}
	return out
}

func cloneLayers(in []model.LayerRequest) []model.LayerRequest {
	out := make([]model.LayerRequest, len(in))
	for i, l := range in {
		out[i] = model.LayerRequest{
			Name:       l.Name,
			Candidates: append([]model.EndpointRef(nil), l.Candidates...),
		}
	}
	return out
}
