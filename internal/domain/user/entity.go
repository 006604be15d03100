// Package user contains the user domain model. Users are created by the
// Metka login flow and consumed read-only by the attendance engine.
package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
)

// User is an authenticated student. The hash is the only identity the system
// stores - the Metka student number itself never touches the database.
type User struct {
	// Hash is sha256(student number), hex encoded.
	Hash string

	// Group is the user's current administrative group. Empty when the
	// portal reported several groups and the user has not picked one yet;
	// without a group no lesson can ever be eligible.
	Group lesson.GroupCode
}

// HasGroup reports whether the user has a group affiliation.
func (u *User) HasGroup() bool {
	return u.Group != ""
}

// HashID derives the stored identity hash from a Metka student number.
func HashID(studentNumber string) string {
	sum := sha256.Sum256([]byte(studentNumber))
	return hex.EncodeToString(sum[:])
}

// Repository persists users.
type Repository interface {
	// Get returns a user by identity hash.
	// Returns shared.ErrUserNotFound when absent.
	Get(ctx context.Context, hash string) (*User, error)

	// Create persists a new user.
	Create(ctx context.Context, u *User) error

	// UpdateGroup sets the user's group affiliation.
	UpdateGroup(ctx context.Context, hash string, group lesson.GroupCode) error

	// ListGroups returns the distinct groups users belong to.
	ListGroups(ctx context.Context) ([]lesson.GroupCode, error)
}
