// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Interfaces the command handlers depend on; implemented by the
// infrastructure layer and by fakes in tests.
// ══════════════════════════════════════════════════════════════════════════════

// Repos is the repository bundle a command sees inside one transaction.
type Repos interface {
	Users() user.Repository
	Tokens() token.Repository
	Lessons() lesson.Repository
	Slabs() slab.Repository
	CheckIns() checkin.Repository
}

// UnitOfWork runs a function with every repository bound to a single
// database transaction, committed when fn returns nil and rolled back
// otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(Repos) error) error
}

// Schedules provides a group's lessons for a day, already normalized and in
// chronological order. Implementations decide whether the answer comes from
// cache or a live timetable fetch.
type Schedules interface {
	Lessons(ctx context.Context, group lesson.GroupCode, day time.Time) ([]*lesson.Lesson, error)
}

// Profile is the identity-provider view of a student.
type Profile struct {
	// StudentNumber is the raw student number. It is hashed before
	// anything is persisted.
	StudentNumber string

	FirstName string
	LastName  string

	// Groups are the administrative groups the provider lists for the
	// student. Usually one; several for students between programmes.
	Groups []string
}

// Authenticator verifies credentials against the external identity provider
// and returns the student's profile.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*Profile, error)
}
