// Package quota enforces per-user submission limits: concurrent active
// jobs and jobs over the trailing 24 hours.
package quota

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pixeon/renderplane/cmd/controlplane/repository"
	apperrors "github.com/pixeon/renderplane/common/errors"
)

// Enforcer checks submission quotas inside the submitting transaction so a
// burst of concurrent submits cannot slip past the limit.
type Enforcer struct {
	limits *repository.LimitsRepository
	jobs   *repository.JobRepository
}

func NewEnforcer(limits *repository.LimitsRepository, jobs *repository.JobRepository) *Enforcer {
	return &Enforcer{limits: limits, jobs: jobs}
}

// Check returns ErrQuotaExceeded when the user is at either limit. The
// limits row is created with defaults on first use.
func (e *Enforcer) Check(ctx context.Context, tx pgx.Tx, userID string) error {
	limits, err := e.limits.GetOrCreate(ctx, tx, userID)
	if err != nil {
		return err
	}

	active, err := e.jobs.CountActiveByUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if active >= limits.MaxConcurrentJobs {
		return fmt.Errorf("%w: %d of %d concurrent jobs in use",
			apperrors.ErrQuotaExceeded, active, limits.MaxConcurrentJobs)
	}

	today, err := e.jobs.CountTodayByUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if today >= limits.MaxJobsPerDay {
		return fmt.Errorf("%w: %d of %d daily jobs used",
			apperrors.ErrQuotaExceeded, today, limits.MaxJobsPerDay)
	}

	return nil
}
