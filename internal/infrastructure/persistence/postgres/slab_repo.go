package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
)

// ══════════════════════════════════════════════════════════════════════════════
// SLAB REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SlabRepository implements slab.Repository for PostgreSQL.
type SlabRepository struct {
	q Querier
}

// NewSlabRepository creates a new SlabRepository over the given querier.
func NewSlabRepository(q Querier) *SlabRepository {
	return &SlabRepository{q: q}
}

// Get returns a slab by ID.
func (r *SlabRepository) Get(ctx context.Context, id string) (*slab.Slab, error) {
	query := `
		SELECT id, latitude, longitude, location
		FROM slabs
		WHERE id = $1
	`

	var (
		s        slab.Slab
		location string
	)

	err := r.q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Coordinates.Lat, &s.Coordinates.Long, &location,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSlabNotFound
		}
		return nil, fmt.Errorf("failed to get slab: %w", err)
	}

	s.Location = lesson.LocationCode(location)
	return &s, nil
}

// Create persists a new slab.
func (r *SlabRepository) Create(ctx context.Context, coordinates geo.Coordinates, location lesson.LocationCode) (*slab.Slab, error) {
	s := &slab.Slab{
		ID:          uuid.NewString(),
		Coordinates: coordinates,
		Location:    location,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO slabs (id, latitude, longitude, location)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.q.Exec(ctx, query, s.ID, s.Coordinates.Lat, s.Coordinates.Long, string(s.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to create slab: %w", err)
	}

	return s, nil
}
