package postgres

import (
	"context"
	"fmt"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository over the given querier.
func NewUserRepository(q Querier) *UserRepository {
	return &UserRepository{q: q}
}

// Get returns a user by identity hash.
func (r *UserRepository) Get(ctx context.Context, hash string) (*user.User, error) {
	query := `SELECT id, COALESCE(group_code, '') FROM users WHERE id = $1`

	var (
		u     user.User
		group string
	)

	err := r.q.QueryRow(ctx, query, hash).Scan(&u.Hash, &group)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Group = lesson.GroupCode(group)
	return &u, nil
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (id, group_code) VALUES ($1, NULLIF($2, ''))`

	_, err := r.q.Exec(ctx, query, u.Hash, string(u.Group))
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// ListGroups returns the distinct groups users belong to, for cache warming.
func (r *UserRepository) ListGroups(ctx context.Context) ([]lesson.GroupCode, error) {
	query := `SELECT DISTINCT group_code FROM users WHERE group_code IS NOT NULL ORDER BY group_code`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []lesson.GroupCode
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, lesson.GroupCode(g))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, nil
}

// UpdateGroup sets the user's group affiliation.
func (r *UserRepository) UpdateGroup(ctx context.Context, hash string, group lesson.GroupCode) error {
	query := `UPDATE users SET group_code = NULLIF($1, '') WHERE id = $2`

	tag, err := r.q.Exec(ctx, query, string(group), hash)
	if err != nil {
		return fmt.Errorf("failed to update user group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}

	return nil
}
