package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgauth/backend/internal/audit/domain"
	auditrepo "orgauth/backend/internal/audit/repository"
)

// SentinelOrgID is the org_id used for audit events that have no org (e.g. password resets).
const SentinelOrgID = "_system"

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo auditrepo.Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. A nil repo makes LogEvent a no-op.
func NewLogger(repo auditrepo.Repository, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, log: log, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
// The write is detached from ctx cancellation so an aborted request still leaves its trail.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.String("org_id", orgID),
			zap.Error(err))
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string, string) {}

// Multi fans each event out to every non-nil logger in order.
func Multi(loggers ...AuditLogger) AuditLogger {
	var out multi
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type multi []AuditLogger

func (m multi) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	for _, l := range m {
		l.LogEvent(ctx, orgID, userID, action, resource, metadata)
	}
}
