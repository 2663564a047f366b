package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"orgauth/backend/internal/audit"
)

const auditScope = "orgauth.audit"

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewAuditEmitter returns an audit.AuditLogger that ships each event as an OTel log record via provider.
// If provider is nil, returns audit.Nop.
func NewAuditEmitter(provider *sdklog.LoggerProvider) audit.AuditLogger {
	if provider == nil {
		return audit.Nop{}
	}
	return newAuditEmitter(provider.Logger(auditScope))
}

func newAuditEmitter(logger recordEmitter) *auditEmitter {
	return &auditEmitter{logger: logger, now: time.Now}
}

type auditEmitter struct {
	logger recordEmitter
	now    func() time.Time
}

// LogEvent converts the audit event to an OTel log record and emits it. The metadata JSON becomes the body.
func (e *auditEmitter) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	rec := otellog.Record{}
	rec.SetTimestamp(e.now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName(action)
	if metadata != "" && metadata != "{}" {
		rec.SetBody(otellog.StringValue(metadata))
	}
	if orgID != "" {
		rec.AddAttributes(otellog.String("org_id", orgID))
	}
	if userID != "" {
		rec.AddAttributes(otellog.String("user_id", userID))
	}
	rec.AddAttributes(
		otellog.String("action", action),
		otellog.String("resource", resource),
	)
	e.logger.Emit(context.WithoutCancel(ctx), rec)
}
