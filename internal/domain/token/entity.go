// Package token contains the access-token domain model used by the session
// layer. The attendance engine itself only ever sees already-authenticated
// users; tokens exist so the HTTP surface can map a bearer value back to one.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DefaultTTL is how long an access token stays valid.
const DefaultTTL = 12 * time.Hour

// Token is an opaque access token bound to a user.
type Token struct {
	Value     string
	UserHash  string
	ExpiresAt time.Time
}

// Generate creates a new random token for the user, valid for ttl.
func Generate(userHash string, ttl time.Duration, now time.Time) (*Token, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return &Token{
		Value:     hex.EncodeToString(raw),
		UserHash:  userHash,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Repository persists access tokens.
type Repository interface {
	// Create persists a new token.
	Create(ctx context.Context, t *Token) error

	// Validate returns the user hash a live (non-expired) token belongs
	// to. Returns shared.ErrTokenNotFound for unknown values and
	// shared.ErrTokenExpired for expired ones.
	Validate(ctx context.Context, value string, now time.Time) (string, error)

	// Delete removes a token (logout). Deleting an unknown value is not
	// an error.
	Delete(ctx context.Context, value string) error

	// DeleteExpired purges tokens that expired before now and reports how
	// many went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
