package jobs

import (
	"context"
	"fmt"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// TokenCleanupJob deletes session tokens that have passed their expiry.
// Expired tokens are already rejected at validation time; this keeps the
// table from growing without bound.
type TokenCleanupJob struct {
	tokens token.Repository
	logger *logger.Logger
}

// NewTokenCleanupJob creates a new TokenCleanupJob.
func NewTokenCleanupJob(tokens token.Repository, log *logger.Logger) *TokenCleanupJob {
	if log == nil {
		log = logger.Default()
	}
	return &TokenCleanupJob{
		tokens: tokens,
		logger: log.With(logger.Component("token_cleanup_job")),
	}
}

// Name returns the job name.
func (j *TokenCleanupJob) Name() string {
	return "token_cleanup"
}

// Description returns a human-readable description.
func (j *TokenCleanupJob) Description() string {
	return "Deletes expired session tokens"
}

// Run deletes all tokens whose expiry is in the past.
func (j *TokenCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.tokens.DeleteExpired(ctx, timeutil.Now())
	if err != nil {
		return fmt.Errorf("deleting expired tokens: %w", err)
	}

	if deleted > 0 {
		j.logger.Info("expired tokens deleted", logger.Int("count", int(deleted)))
	} else {
		j.logger.Debug("no expired tokens")
	}

	return nil
}
