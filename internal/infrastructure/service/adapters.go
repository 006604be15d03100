package service

import (
	"context"

	"github.com/metka-hub/metka-attendance-hub/internal/application/command"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/external/metka"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// txRepos exposes a transactional postgres repository bundle through the
// command.Repos port.
type txRepos struct {
	r *postgres.Repos
}

func (t txRepos) Users() user.Repository       { return t.r.Users }
func (t txRepos) Tokens() token.Repository     { return t.r.Tokens }
func (t txRepos) Lessons() lesson.Repository   { return t.r.Lessons }
func (t txRepos) Slabs() slab.Repository       { return t.r.Slabs }
func (t txRepos) CheckIns() checkin.Repository { return t.r.CheckIns }

// UnitOfWorkAdapter adapts the postgres.Store to the command.UnitOfWork port.
type UnitOfWorkAdapter struct {
	store *postgres.Store
}

// NewUnitOfWorkAdapter creates a new UnitOfWorkAdapter.
func NewUnitOfWorkAdapter(store *postgres.Store) *UnitOfWorkAdapter {
	return &UnitOfWorkAdapter{store: store}
}

// WithinTx runs fn with every repository bound to one transaction.
func (a *UnitOfWorkAdapter) WithinTx(ctx context.Context, fn func(command.Repos) error) error {
	return a.store.WithinTx(ctx, func(r *postgres.Repos) error {
		return fn(txRepos{r: r})
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATOR ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// MetkaAuthenticator adapts the metka.Client to the command.Authenticator
// port.
type MetkaAuthenticator struct {
	client *metka.Client
}

// NewMetkaAuthenticator creates a new MetkaAuthenticator.
func NewMetkaAuthenticator(client *metka.Client) *MetkaAuthenticator {
	return &MetkaAuthenticator{client: client}
}

// Login authenticates against the portal and maps the scraped profile.
func (a *MetkaAuthenticator) Login(ctx context.Context, username, password string) (*command.Profile, error) {
	info, err := a.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	return &command.Profile{
		StudentNumber: info.StudentNumber,
		FirstName:     info.FirstName,
		LastName:      info.LastName,
		Groups:        info.Groups,
	}, nil
}
