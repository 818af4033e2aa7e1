// Package ident allocates collision-free numeric identifiers from bounded
// per-kind namespaces. A candidate is drawn uniformly, probed against the
// store, and finally claimed by the insert itself: the persistence layer's
// uniqueness constraint is the authoritative gate, and a rejected insert
// triggers a fresh draw. This keeps allocation correct under concurrency
// even though the probe alone is not race-free.
package ident

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrCapacityExhausted is returned when the retry ceiling is hit without
// finding a free identifier. The namespace is (close to) saturated.
var ErrCapacityExhausted = errors.New("identifier namespace capacity exhausted")

// Namespace is a fixed-width numeric identifier space for one entity kind.
type Namespace struct {
	Kind string
	Min  int64 // inclusive
	Max  int64 // inclusive
}

// Per-kind namespaces. Disjoint tables enforce uniqueness per kind, so an
// album id may numerically equal a track id without conflict.
var (
	Users     = Namespace{Kind: "user", Min: 100000, Max: 999999}
	Albums    = Namespace{Kind: "album", Min: 10000, Max: 99999}
	Tracks    = Namespace{Kind: "track", Min: 1000000, Max: 9999999}
	Playlists = Namespace{Kind: "playlist", Min: 100000, Max: 999999}
)

// Size returns the number of identifiers in the namespace.
func (n Namespace) Size() int64 {
	return n.Max - n.Min + 1
}

// Store is the persistence probe the allocator checks candidates against.
type Store interface {
	IDExists(ctx context.Context, id int64) (bool, error)
}

// Allocator draws identifiers for a single namespace.
// Safe for concurrent use.
type Allocator struct {
	ns         Namespace
	store      Store
	maxRetries int

	// isConflict reports whether an insert error is a duplicate-key
	// rejection, which the allocator answers with a fresh draw.
	isConflict func(error) bool
}

// NewAllocator creates an allocator for the given namespace. maxRetries
// bounds the draw loop; isConflict classifies insert errors (pass the
// persistence layer's duplicate-entry predicate).
func NewAllocator(ns Namespace, store Store, maxRetries int, isConflict func(error) bool) *Allocator {
	if maxRetries <= 0 {
		maxRetries = 32
	}
	return &Allocator{
		ns:         ns,
		store:      store,
		maxRetries: maxRetries,
		isConflict: isConflict,
	}
}

// Allocate draws a candidate not currently held by a live row. The result is
// only reserved once the caller's insert succeeds; use AllocateAndInsert for
// the full contract.
func (a *Allocator) Allocate(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		candidate := a.ns.Min + rand.Int64N(a.ns.Size())
		exists, err := a.store.IDExists(ctx, candidate)
		if err != nil {
			return 0, fmt.Errorf("failed to probe %s id %d: %w", a.ns.Kind, candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%s namespace: %w", a.ns.Kind, ErrCapacityExhausted)
}

// AllocateAndInsert draws candidates and runs insert with each one until the
// insert succeeds. A duplicate-key rejection (two callers raced on the same
// candidate) counts against the retry ceiling and triggers a new draw; any
// other insert error propagates unchanged.
func (a *Allocator) AllocateAndInsert(ctx context.Context, insert func(ctx context.Context, id int64) error) (int64, error) {
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		id, err := a.Allocate(ctx)
		if err != nil {
			return 0, err
		}

		err = insert(ctx, id)
		if err == nil {
			return id, nil
		}
		if a.isConflict != nil && a.isConflict(err) {
			continue
		}
		return 0, err
	}
	return 0, fmt.Errorf("%s namespace: %w", a.ns.Kind, ErrCapacityExhausted)
}
