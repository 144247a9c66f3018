package schedule

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"

	"latinevents/internal/model"
)

// Facets are the distinct filter options derived from the full event set.
// They never depend on the current filter selection.
type Facets struct {
	Regions []string            `json:"regions"`
	Labels  []string            `json:"labels"`
	Styles  []model.StyleOption `json:"styles"`
}

// StyleLabel returns the display name for a style code, or the code itself.
func StyleLabel(code string) string {
	if name, ok := model.StyleNames[code]; ok {
		return name
	}
	return code
}

// ExtractFacets collects regions, labels and styles from events.
func ExtractFacets(events []model.Event) Facets {
	regions := make(map[string]struct{})
	labels := make(map[string]struct{})
	styles := make(map[string]struct{})

	for _, ev := range events {
		if ev.Region != "" {
			regions[ev.Region] = struct{}{}
		}
		for _, l := range ev.Labels {
			labels[l] = struct{}{}
		}
		for _, s := range ev.Styles {
			styles[s] = struct{}{}
		}
	}

	c := newCollator()

	styleOpts := make([]model.StyleOption, 0, len(styles))
	for code := range styles {
		styleOpts = append(styleOpts, model.StyleOption{Code: code, Label: StyleLabel(code)})
	}
	slices.SortFunc(styleOpts, func(a, b model.StyleOption) int {
		if n := c.CompareString(a.Label, b.Label); n != 0 {
			return n
		}
		return c.CompareString(a.Code, b.Code)
	})

	return Facets{
		Regions: sortedKeys(c, regions),
		Labels:  sortedKeys(c, labels),
		Styles:  styleOpts,
	}
}

func sortedKeys(c *collate.Collator, set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b string) int {
		if n := c.CompareString(a, b); n != 0 {
			return n
		}
		// collation-equal strings still need a deterministic order
		return cmp.Compare(a, b)
	})
	return out
}
