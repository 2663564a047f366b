package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/platform/retry"
)

type fakeExpirer struct {
	calls atomic.Int32
	errs  []error
	panic bool
}

func (f *fakeExpirer) ExpireStale(context.Context) (int64, error) {
	n := int(f.calls.Add(1)) - 1
	if f.panic {
		panic("boom")
	}
	if n < len(f.errs) {
		return 0, f.errs[n]
	}
	return 3, nil
}

func (f *fakeExpirer) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	return f.ExpireStale(ctx)
}

func fastRunner(f *fakeExpirer, log *zap.Logger) *Runner {
	r := NewRunner(f, f, log, time.Second)
	r.retry = retry.Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 3}
	return r
}

func TestRunner_RetriesStoreUnavailable(t *testing.T) {
	f := &fakeExpirer{errs: []error{
		apperr.New(apperr.CodeStoreUnavailable, "down"),
		apperr.New(apperr.CodeStoreUnavailable, "down"),
	}}
	core, logs := observer.New(zap.DebugLevel)
	fastRunner(f, zap.New(core)).ExpireInvitations()

	if got := f.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if logs.FilterMessage("job completed").Len() != 1 {
		t.Error("expected a completion log entry")
	}
}

func TestRunner_DoesNotRetryPermanentErrors(t *testing.T) {
	f := &fakeExpirer{errs: []error{errors.New("bad query")}}
	core, logs := observer.New(zap.DebugLevel)
	fastRunner(f, zap.New(core)).PurgeResetTokens()

	if got := f.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if logs.FilterMessage("job failed").Len() != 1 {
		t.Error("expected a failure log entry")
	}
}

func TestRunner_RecoversPanics(t *testing.T) {
	f := &fakeExpirer{panic: true}
	core, logs := observer.New(zap.DebugLevel)
	fastRunner(f, zap.New(core)).RunAll()

	if logs.FilterMessage("job panicked").Len() != 2 {
		t.Errorf("panicked entries = %d, want 2", logs.FilterMessage("job panicked").Len())
	}
}

func TestScheduler(t *testing.T) {
	r := fastRunner(&fakeExpirer{}, nil)
	if _, err := NewScheduler(r, "not a schedule", nil); err == nil {
		t.Error("invalid schedule should fail")
	}
	s, err := NewScheduler(r, "", nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start()
	defer s.Stop()
	next := s.Next()
	if next.IsZero() || next.After(time.Now().Add(15*time.Minute+time.Second)) {
		t.Errorf("next run = %v, want within 15 minutes", next)
	}
	if next.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", next.Location())
	}
}
