package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN COMMAND
// Authenticates against the identity provider, creates the user row on first
// login, and issues an access token. Only the hash of the student number is
// ever persisted.
// ══════════════════════════════════════════════════════════════════════════════

// LoginCommand contains the credentials for a login attempt.
type LoginCommand struct {
	Username string
	Password string
}

// Validate validates the command.
func (c LoginCommand) Validate() error {
	if c.Username == "" {
		return errors.New("login: username is required")
	}
	if c.Password == "" {
		return errors.New("login: password is required")
	}
	return nil
}

// LoginResult is the authenticated session handed back to the caller.
type LoginResult struct {
	// Token is the opaque access token value.
	Token string

	// ExpiresAt is when the token stops working.
	ExpiresAt time.Time

	// UserHash is the stored identity of the user.
	UserHash string

	// Group is the user's active group, empty when not yet selected.
	Group lesson.GroupCode

	// Groups are all groups the identity provider listed. When there is
	// more than one and Group is empty, the caller must prompt the user
	// to pick one before any lesson can be eligible.
	Groups []string

	FirstName string
	LastName  string
}

// NeedsGroupSelection reports whether the user still has to pick a group.
func (r *LoginResult) NeedsGroupSelection() bool {
	return r.Group == "" && len(r.Groups) > 1
}

// LoginHandler handles the LoginCommand.
type LoginHandler struct {
	auth   Authenticator
	uow    UnitOfWork
	logger *logger.Logger
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(auth Authenticator, uow UnitOfWork, log *logger.Logger) *LoginHandler {
	if log == nil {
		log = logger.Default()
	}
	return &LoginHandler{
		auth:   auth,
		uow:    uow,
		logger: log.With(logger.Component("login")),
	}
}

// Handle executes the login flow. shared.ErrBadCredentials passes through
// unchanged so the transport layer can map it to an authentication failure.
func (h *LoginHandler) Handle(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	profile, err := h.auth.Login(ctx, cmd.Username, cmd.Password)
	if err != nil {
		return nil, err
	}

	now := timeutil.Now()
	hash := user.HashID(profile.StudentNumber)

	t, err := token.Generate(hash, token.DefaultTTL, now)
	if err != nil {
		return nil, fmt.Errorf("login: generate token: %w", err)
	}

	result := &LoginResult{
		Token:     t.Value,
		ExpiresAt: t.ExpiresAt,
		UserHash:  hash,
		Groups:    profile.Groups,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	}

	err = h.uow.WithinTx(ctx, func(r Repos) error {
		u, err := r.Users().Get(ctx, hash)
		switch {
		case errors.Is(err, shared.ErrUserNotFound):
			u = &user.User{Hash: hash}
			// The group is only knowable without asking when the
			// provider lists exactly one.
			if len(profile.Groups) == 1 {
				u.Group = lesson.GroupCode(profile.Groups[0])
			}
			if err := r.Users().Create(ctx, u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("get user: %w", err)
		}

		result.Group = u.Group

		if err := r.Tokens().Create(ctx, t); err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	h.logger.Info("user logged in",
		logger.UserHash(hash),
		logger.GroupCode(string(result.Group)),
		logger.Int("groups", len(result.Groups)))

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGOUT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// LogoutCommand invalidates an access token.
type LogoutCommand struct {
	Token string
}

// LogoutHandler handles the LogoutCommand.
type LogoutHandler struct {
	tokens token.Repository
}

// NewLogoutHandler creates a new LogoutHandler.
func NewLogoutHandler(tokens token.Repository) *LogoutHandler {
	return &LogoutHandler{tokens: tokens}
}

// Handle deletes the token. Logging out an already-dead token succeeds.
func (h *LogoutHandler) Handle(ctx context.Context, cmd LogoutCommand) error {
	if cmd.Token == "" {
		return nil
	}
	return h.tokens.Delete(ctx, cmd.Token)
}

// ══════════════════════════════════════════════════════════════════════════════
// SELECT GROUP COMMAND
// Users the provider lists under several groups pick the active one here.
// ══════════════════════════════════════════════════════════════════════════════

// SelectGroupCommand sets the user's active group.
type SelectGroupCommand struct {
	UserHash string
	Group    lesson.GroupCode
}

// Validate validates the command.
func (c SelectGroupCommand) Validate() error {
	if c.UserHash == "" {
		return errors.New("select_group: user hash is required")
	}
	if !c.Group.IsValid() {
		return fmt.Errorf("select_group: invalid group code %q", c.Group)
	}
	return nil
}

// SelectGroupHandler handles the SelectGroupCommand.
type SelectGroupHandler struct {
	users  user.Repository
	logger *logger.Logger
}

// NewSelectGroupHandler creates a new SelectGroupHandler.
func NewSelectGroupHandler(users user.Repository, log *logger.Logger) *SelectGroupHandler {
	if log == nil {
		log = logger.Default()
	}
	return &SelectGroupHandler{
		users:  users,
		logger: log.With(logger.Component("select_group")),
	}
}

// Handle stores the chosen group.
func (h *SelectGroupHandler) Handle(ctx context.Context, cmd SelectGroupCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	if err := h.users.UpdateGroup(ctx, cmd.UserHash, cmd.Group); err != nil {
		return fmt.Errorf("select_group: %w", err)
	}

	h.logger.Info("group selected",
		logger.UserHash(cmd.UserHash),
		logger.GroupCode(string(cmd.Group)))

	return nil
}
