// Package slab contains the domain model for physical check-in points.
// A slab is a beacon mounted in a room: it knows where it is and which
// location code it represents. Slabs are created administratively and are
// read-only from the attendance engine's perspective.
package slab

import (
	"context"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
)

// Slab is a physical check-in point.
type Slab struct {
	ID          string
	Coordinates geo.Coordinates
	Location    lesson.LocationCode
}

// Validate checks the structural invariants of a slab.
func (s *Slab) Validate() error {
	if !s.Location.IsValid() {
		return shared.ErrInvalidSlab
	}
	return nil
}

// Repository persists slabs.
type Repository interface {
	// Get returns a slab by ID. Returns shared.ErrSlabNotFound when absent.
	Get(ctx context.Context, id string) (*Slab, error)

	// Create persists a new slab and returns it with its assigned ID.
	Create(ctx context.Context, coordinates geo.Coordinates, location lesson.LocationCode) (*Slab, error)
}
