package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Repos bundles every repository over a single querier. Inside a transaction
// all of them share the same tx, so a check-in decision and the rows it writes
// commit or roll back together.
type Repos struct {
	Users    *UserRepository
	Tokens   *TokenRepository
	Lessons  *LessonRepository
	Slabs    *SlabRepository
	CheckIns *CheckInRepository
}

// NewRepos builds the repository bundle over a querier (pool or tx).
func NewRepos(q Querier) *Repos {
	return &Repos{
		Users:    NewUserRepository(q),
		Tokens:   NewTokenRepository(q),
		Lessons:  NewLessonRepository(q),
		Slabs:    NewSlabRepository(q),
		CheckIns: NewCheckInRepository(q),
	}
}

// Store is the unit-of-work entry point handed to the application layer.
// Plain reads go through the pool-backed bundle; attendance decisions run
// inside WithinTx.
type Store struct {
	conn  *Connection
	repos *Repos
}

// NewStore creates a Store over the connection pool.
func NewStore(conn *Connection) *Store {
	return &Store{
		conn:  conn,
		repos: NewRepos(conn),
	}
}

// Repos returns the pool-backed repository bundle for non-transactional work.
func (s *Store) Repos() *Repos {
	return s.repos
}

// WithinTx runs fn with a repository bundle bound to one transaction,
// committing on nil and rolling back on error.
func (s *Store) WithinTx(ctx context.Context, fn func(*Repos) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(NewRepos(tx))
	})
}

// WithinReadTx runs fn inside a read-only transaction.
func (s *Store) WithinReadTx(ctx context.Context, fn func(*Repos) error) error {
	return s.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		return fn(NewRepos(tx))
	})
}
