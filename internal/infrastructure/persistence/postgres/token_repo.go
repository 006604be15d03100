package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOKEN REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TokenRepository implements token.Repository for PostgreSQL.
type TokenRepository struct {
	q Querier
}

// NewTokenRepository creates a new TokenRepository over the given querier.
func NewTokenRepository(q Querier) *TokenRepository {
	return &TokenRepository{q: q}
}

// Create persists a new access token.
func (r *TokenRepository) Create(ctx context.Context, t *token.Token) error {
	query := `INSERT INTO tokens (value, user_id, expires_at) VALUES ($1, $2, $3)`

	_, err := r.q.Exec(ctx, query, t.Value, t.UserHash, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

// Validate returns the owning user hash for a live token.
func (r *TokenRepository) Validate(ctx context.Context, value string, now time.Time) (string, error) {
	query := `SELECT user_id, expires_at FROM tokens WHERE value = $1`

	var (
		userHash  string
		expiresAt time.Time
	)

	err := r.q.QueryRow(ctx, query, value).Scan(&userHash, &expiresAt)
	if err != nil {
		if IsNoRows(err) {
			return "", shared.ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to validate token: %w", err)
	}

	if !now.Before(expiresAt) {
		return "", shared.ErrTokenExpired
	}

	return userHash, nil
}

// DeleteExpired purges tokens that expired before now.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM tokens WHERE expires_at <= $1`

	tag, err := r.q.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Delete removes a token. Unknown values are a no-op.
func (r *TokenRepository) Delete(ctx context.Context, value string) error {
	query := `DELETE FROM tokens WHERE value = $1`

	if _, err := r.q.Exec(ctx, query, value); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}
