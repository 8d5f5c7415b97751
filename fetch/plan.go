package fetch

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Plan errors.
var (
	// ErrPathCollision indicates two requests map to the same destination.
	ErrPathCollision = errors.New("destination path collision")
	// ErrEmptyPlan indicates there is nothing to fetch.
	ErrEmptyPlan = errors.New("no templates to plan")
	// ErrYearRange indicates an inverted year range.
	ErrYearRange = errors.New("invalid year range")
)

// Planned is a request with its precomputed destination.
type Planned struct {
	Request     Request
	Destination string
}

// Plan enumerates every (template, year) request, template-major, and
// computes each destination. Destinations are pairwise distinct.
func Plan(templates []Template, startYear, endYear int, naming Naming) ([]Planned, error) {
	if len(templates) == 0 {
		return nil, ErrEmptyPlan
	}
	if startYear > endYear {
		return nil, fmt.Errorf("%w: %d > %d", ErrYearRange, startYear, endYear)
	}
	if naming.Archive == "" {
		return nil, errors.New("archive tag is required")
	}

	planned := make([]Planned, 0, len(templates)*(endYear-startYear+1))
	seen := make(map[string]string, cap(planned))

	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		for year := startYear; year <= endYear; year++ {
			req := NewRequest(t, year)
			dest := naming.Destination(req)
			key := filepath.Clean(dest)
			if prev, ok := seen[key]; ok {
				return nil, fmt.Errorf("%w: %s (templates %s and %s)", ErrPathCollision, dest, prev, t.Tag)
			}
			seen[key] = t.Tag
			planned = append(planned, Planned{Request: req, Destination: dest})
		}
	}
	return planned, nil
}
