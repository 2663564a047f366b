package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs the sweep every 15 minutes. Schedules use six fields, seconds first.
const DefaultSchedule = "0 */15 * * * *"

// Scheduler runs the Runner's jobs on a cron schedule in UTC.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler registers every job of runner on schedule. An empty schedule means DefaultSchedule.
func NewScheduler(runner *Runner, schedule string, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)
	if _, err := c.AddFunc(schedule, runner.ExpireInvitations); err != nil {
		return nil, fmt.Errorf("jobs: register ExpireInvitations: %w", err)
	}
	if _, err := c.AddFunc(schedule, runner.PurgeResetTokens); err != nil {
		return nil, fmt.Errorf("jobs: register PurgeResetTokens: %w", err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Next returns the next time any job is due, or the zero time when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}
