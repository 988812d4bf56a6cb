package supervising

import (
	"fmt"
	"path"

	"switchyard/internal/route"
)

// FilterResult tells whether a route is supervised and, when not, why.
type FilterResult struct {
	Supervised bool
	Reason     string
}

// Filter decides whether the controller supervises a route.
type Filter func(r *route.Route) FilterResult

var accepted = FilterResult{Supervised: true}

// Chain supervises a route only when every filter does. The first
// rejection wins.
func Chain(filters ...Filter) Filter {
	return func(r *route.Route) FilterResult {
		for _, f := range filters {
			if res := f(r); !res.Supervised {
				return res
			}
		}
		return accepted
	}
}

// AutoStartupFilter rejects routes configured with autoStartup=false.
func AutoStartupFilter(r *route.Route) FilterResult {
	if !r.AutoStartup() {
		return FilterResult{Reason: "autoStartup=false"}
	}
	return accepted
}

// PatternFilter supervises routes whose id matches one of include, or any
// route when include is empty, unless the id matches one of exclude.
// Patterns use path.Match syntax.
func PatternFilter(include, exclude []string) (Filter, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid route pattern %q: %w", p, err)
		}
	}
	return func(r *route.Route) FilterResult {
		for _, p := range exclude {
			if ok, _ := path.Match(p, r.ID()); ok {
				return FilterResult{Reason: "excluded by " + p}
			}
		}
		if len(include) == 0 {
			return accepted
		}
		for _, p := range include {
			if ok, _ := path.Match(p, r.ID()); ok {
				return accepted
			}
		}
		return FilterResult{Reason: "not included"}
	}, nil
}
