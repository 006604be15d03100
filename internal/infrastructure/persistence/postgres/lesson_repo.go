package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LessonRepository implements lesson.Repository for PostgreSQL.
type LessonRepository struct {
	q Querier
}

// NewLessonRepository creates a new LessonRepository over the given querier
// (the pool, or a per-request transaction).
func NewLessonRepository(q Querier) *LessonRepository {
	return &LessonRepository{q: q}
}

// Ensure persists the lesson under its content hash if it is not stored yet
// and returns the hash. The insert is a single atomic conditional write:
// ON CONFLICT DO NOTHING makes two concurrent ensures of identical content
// converge on one row without either of them failing.
func (r *LessonRepository) Ensure(ctx context.Context, l *lesson.Lesson) (string, error) {
	id := l.Fingerprint()

	query := `
		INSERT INTO lessons (id, start_at, end_at, locations, address, code, name, groups, teachers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.q.Exec(ctx, query,
		id,
		l.Start,
		l.End,
		locationStrings(l.Locations),
		l.Address,
		l.Code,
		l.Name,
		groupStrings(l.Groups),
		l.Teachers,
	)
	if err != nil {
		return "", fmt.Errorf("failed to ensure lesson: %w", err)
	}

	l.ID = id
	return id, nil
}

// GetByID returns a stored lesson by its content hash.
func (r *LessonRepository) GetByID(ctx context.Context, id string) (*lesson.Lesson, error) {
	query := `
		SELECT id, start_at, end_at, locations, address, code, name, groups, teachers
		FROM lessons
		WHERE id = $1
	`

	var (
		l         lesson.Lesson
		start     time.Time
		end       time.Time
		locations []string
		groups    []string
	)

	err := r.q.QueryRow(ctx, query, id).Scan(
		&l.ID, &start, &end, &locations, &l.Address, &l.Code, &l.Name, &groups, &l.Teachers,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	l.Start = start
	l.End = end
	l.Locations = locationCodes(locations)
	l.Groups = groupCodes(groups)

	return &l, nil
}

func locationStrings(codes []lesson.LocationCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

func locationCodes(values []string) []lesson.LocationCode {
	out := make([]lesson.LocationCode, len(values))
	for i, v := range values {
		out[i] = lesson.LocationCode(v)
	}
	return out
}

func groupStrings(codes []lesson.GroupCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

func groupCodes(values []string) []lesson.GroupCode {
	out := make([]lesson.GroupCode, len(values))
	for i, v := range values {
		out[i] = lesson.GroupCode(v)
	}
	return out
}
