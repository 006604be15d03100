package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECKIN REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CheckInRepository implements checkin.Repository for PostgreSQL.
type CheckInRepository struct {
	q Querier
}

// NewCheckInRepository creates a new CheckInRepository over the given querier.
func NewCheckInRepository(q Querier) *CheckInRepository {
	return &CheckInRepository{q: q}
}

// Get returns the ledger row for a (user, lesson) pair.
func (r *CheckInRepository) Get(ctx context.Context, userHash, lessonID string) (*checkin.CheckIn, error) {
	query := `
		SELECT id, user_id, lesson_id, group_code, location, created_at, updated_at
		FROM checkins
		WHERE user_id = $1 AND lesson_id = $2
	`

	var (
		c        checkin.CheckIn
		group    string
		location string
	)

	err := r.q.QueryRow(ctx, query, userHash, lessonID).Scan(
		&c.ID, &c.UserHash, &c.LessonID, &group, &location, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCheckInNotFound
		}
		return nil, fmt.Errorf("failed to get checkin: %w", err)
	}

	c.Group = lesson.GroupCode(group)
	c.Location = lesson.LocationCode(location)

	return &c, nil
}

// Create inserts a new ledger row. A unique violation on (user, lesson)
// means a concurrent request won the race; that is reported as
// shared.ErrCheckInExists so the caller can fall back to the
// confirm-update path instead of failing the request.
func (r *CheckInRepository) Create(ctx context.Context, c *checkin.CheckIn) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO checkins (id, user_id, lesson_id, group_code, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	_, err := r.q.Exec(ctx, query,
		c.ID,
		c.UserHash,
		c.LessonID,
		string(c.Group),
		string(c.Location),
		now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCheckInExists
		}
		return fmt.Errorf("failed to create checkin: %w", err)
	}

	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// Update overwrites group and location of the existing row for the pair.
func (r *CheckInRepository) Update(ctx context.Context, c *checkin.CheckIn) error {
	now := time.Now().UTC()

	query := `
		UPDATE checkins
		SET group_code = $1, location = $2, updated_at = $3
		WHERE user_id = $4 AND lesson_id = $5
	`

	tag, err := r.q.Exec(ctx, query,
		string(c.Group),
		string(c.Location),
		now,
		c.UserHash,
		c.LessonID,
	)
	if err != nil {
		return fmt.Errorf("failed to update checkin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCheckInNotFound
	}

	c.UpdatedAt = now
	return nil
}
