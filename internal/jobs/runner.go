// Package jobs runs the periodic maintenance work: expiring stale invitations
// and purging used-up password-reset tokens.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orgauth/backend/internal/platform/retry"
)

// InvitationExpirer is implemented by *invitation/service.Lifecycle.
type InvitationExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// ResetTokenPurger is implemented by *identity/service.AuthService.
type ResetTokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

// Runner holds the job bodies. Each job runs with panic recovery, a timeout, and
// retries on STORE_UNAVAILABLE.
type Runner struct {
	invitations InvitationExpirer
	resets      ResetTokenPurger
	log         *zap.Logger
	timeout     time.Duration
	retry       retry.Policy
}

// NewRunner returns a Runner. timeout bounds one job run; zero means one minute.
func NewRunner(invitations InvitationExpirer, resets ResetTokenPurger, log *zap.Logger, timeout time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Runner{
		invitations: invitations,
		resets:      resets,
		log:         log,
		timeout:     timeout,
		retry:       retry.DefaultPolicy,
	}
}

// ExpireInvitations marks stale pending invitations expired.
func (r *Runner) ExpireInvitations() {
	r.runWithRecovery("ExpireInvitations", func(ctx context.Context) (int64, error) {
		return r.invitations.ExpireStale(ctx)
	})
}

// PurgeResetTokens deletes expired password-reset tokens.
func (r *Runner) PurgeResetTokens() {
	r.runWithRecovery("PurgeResetTokens", func(ctx context.Context) (int64, error) {
		return r.resets.PurgeExpiredResetTokens(ctx)
	})
}

// RunAll runs every job once, for manual execution.
func (r *Runner) RunAll() {
	r.ExpireInvitations()
	r.PurgeResetTokens()
}

func (r *Runner) runWithRecovery(name string, job func(context.Context) (int64, error)) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("job panicked", zap.String("job", name), zap.Any("panic", p))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	start := time.Now()
	var n int64
	err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		var err error
		n, err = job(ctx)
		return err
	})
	if err != nil {
		r.log.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	r.log.Debug("job completed",
		zap.String("job", name),
		zap.Int64("affected", n),
		zap.Duration("took", time.Since(start)))
}
