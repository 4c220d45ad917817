// Package location resolves the current position of a tracked counterparty
// (a rider for a customer view, a customer for a rider view). Positions may
// live in several places depending on which backend owns the entity, so the
// resolver walks an ordered list of sources until one produces a usable
// coordinate.
package location

import (
	"context"
	"errors"
	"fmt"

	"cafetrack/internal/geo"
)

// ErrUnavailable means no source currently knows the entity's position.
// Callers must treat this as "temporarily unknown", not as a failure: the
// next poll tick is an independent attempt.
var ErrUnavailable = errors.New("location unavailable")

// Source is one strategy for looking up an entity's position. A source that
// has no answer returns an error wrapping ErrUnavailable; any other error is
// considered fatal for the whole resolution.
type Source interface {
	Name() string
	Lookup(ctx context.Context, entityID string) (geo.Point, error)
}

// Resolver tries each configured source in order.
type Resolver struct {
	sources []Source
}

// NewResolver creates a resolver over the given sources. Order matters: the
// first source producing a valid coordinate wins.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Fetch returns the entity's position from the first source that knows it.
// Sources that miss are skipped; a fatal error (for example an upstream 401)
// aborts immediately and is returned to the caller.
func (r *Resolver) Fetch(ctx context.Context, entityID string) (geo.Point, error) {
	if entityID == "" {
		return geo.Point{}, fmt.Errorf("%w: empty entity id", ErrUnavailable)
	}

	for _, src := range r.sources {
		pt, err := src.Lookup(ctx, entityID)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				continue
			}
			return geo.Point{}, fmt.Errorf("source %s: %w", src.Name(), err)
		}
		if pt.Valid() {
			return pt, nil
		}
	}

	return geo.Point{}, ErrUnavailable
}
