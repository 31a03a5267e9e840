package directory

import (
	"sort"
	"strings"

	"github.com/yourorg/rentaldesk/pkg/types"
)

// Spec is a partner filter: free text against name/email, exact city, exact
// country. Empty fields match everything; predicates combine conjunctively.
type Spec struct {
	Text    string
	City    string
	Country string
}

// Apply derives the filtered view from the in-memory collection. No network
// round-trip is involved.
func Apply(partners []types.Partner, spec Spec) []types.Partner {
	text := strings.ToLower(strings.TrimSpace(spec.Text))
	out := make([]types.Partner, 0, len(partners))
	for _, p := range partners {
		if !matchesText(p, text) {
			continue
		}
		if spec.City != "" && p.Ville != spec.City {
			continue
		}
		if spec.Country != "" && p.Pays != spec.Country {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesText(p types.Partner, text string) bool {
	if text == "" {
		return true
	}
	for _, field := range []string{p.Nom, p.NomEntreprise, p.Email} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

// Facet is one selectable filter value with its frequency.
type Facet struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CityFacets counts cities over the unfiltered collection, so the operator
// can always broaden an active filter back out.
func CityFacets(partners []types.Partner) []Facet {
	return facets(partners, func(p types.Partner) string { return p.Ville })
}

// CountryFacets counts countries over the unfiltered collection.
func CountryFacets(partners []types.Partner) []Facet {
	return facets(partners, func(p types.Partner) string { return p.Pays })
}

func facets(partners []types.Partner, key func(types.Partner) string) []Facet {
	counts := make(map[string]int)
	for _, p := range partners {
		k := strings.TrimSpace(key(p))
		if k == "" {
			continue
		}
		counts[k]++
	}
	out := make([]Facet, 0, len(counts))
	for v, n := range counts {
		out = append(out, Facet{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
