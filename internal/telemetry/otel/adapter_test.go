package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"orgauth/backend/internal/audit"
)

func TestNewAuditEmitter_NilProvider_ReturnsNop(t *testing.T) {
	em := NewAuditEmitter(nil)
	if _, ok := em.(audit.Nop); !ok {
		t.Fatalf("NewAuditEmitter(nil) = %T, want audit.Nop", em)
	}
	em.LogEvent(context.Background(), "org1", "user1", audit.ActionMemberAdded, audit.ResourceMembership, "{}")
}

func TestNewAuditEmitter_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewAuditEmitter(provider)
	if _, ok := em.(*auditEmitter); !ok {
		t.Fatalf("NewAuditEmitter = %T, want *auditEmitter", em)
	}
	em.LogEvent(context.Background(), "org1", "user1", audit.ActionMemberAdded, audit.ResourceMembership, "{}")
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
	ctx context.Context
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.ctx = ctx
	r.rec = rec
}

func attrsOf(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestLogEvent_AttributeAndBodyMapping(t *testing.T) {
	cap := &recordCapture{}
	em := newAuditEmitter(cap)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	em.now = func() time.Time { return now }

	meta := audit.Metadata("role", "admin")
	em.LogEvent(context.Background(), "org1", "user1", audit.ActionRoleChanged, audit.ResourceMembership, meta)
	rec := cap.rec

	if got := rec.Body().AsString(); got != meta {
		t.Errorf("body = %q, want %q", got, meta)
	}
	if rec.EventName() != audit.ActionRoleChanged {
		t.Errorf("event name = %q, want %q", rec.EventName(), audit.ActionRoleChanged)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want info", rec.Severity())
	}
	if !rec.Timestamp().Equal(now) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), now)
	}
	want := map[string]string{
		"org_id": "org1", "user_id": "user1",
		"action": audit.ActionRoleChanged, "resource": audit.ResourceMembership,
	}
	attrs := attrsOf(rec)
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestLogEvent_EmptyMetadata_NoBodySet(t *testing.T) {
	for _, meta := range []string{"", "{}"} {
		cap := &recordCapture{}
		newAuditEmitter(cap).LogEvent(context.Background(), "org1", "", audit.ActionLoginFailure, audit.ResourceUser, meta)
		if !cap.rec.Body().Empty() {
			t.Errorf("metadata %q: body should be empty", meta)
		}
	}
}

func TestLogEvent_EmptyIDsOmitted(t *testing.T) {
	cap := &recordCapture{}
	newAuditEmitter(cap).LogEvent(context.Background(), "", "", audit.ActionLoginFailure, audit.ResourceUser, "{}")
	attrs := attrsOf(cap.rec)
	if _, ok := attrs["org_id"]; ok {
		t.Error("org_id should not be set for empty string")
	}
	if _, ok := attrs["user_id"]; ok {
		t.Error("user_id should not be set for empty string")
	}
	if attrs["action"] != audit.ActionLoginFailure {
		t.Errorf("action = %q", attrs["action"])
	}
}

func TestLogEvent_DetachedFromCancellation(t *testing.T) {
	cap := &recordCapture{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	newAuditEmitter(cap).LogEvent(ctx, "org1", "user1", audit.ActionMemberRemoved, audit.ResourceMembership, "{}")
	if cap.ctx.Err() != nil {
		t.Errorf("emit context err = %v, want nil", cap.ctx.Err())
	}
}
