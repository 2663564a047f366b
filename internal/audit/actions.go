package audit

import "encoding/json"

// Actions recorded by the core. Resource names the entity the action touched.
const (
	ActionOrganizationCreated    = "organization_created"
	ActionOrganizationSelected   = "organization_selected"
	ActionMemberAdded            = "member_added"
	ActionMemberRemoved          = "member_removed"
	ActionRoleChanged            = "role_changed"
	ActionInvitationCreated      = "invitation_created"
	ActionInvitationRevoked      = "invitation_revoked"
	ActionInvitationAccepted     = "invitation_accepted"
	ActionInvitationExpired      = "invitation_expired"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordResetCompleted = "password_reset_completed"
	ActionAPITokenIssued         = "api_token_issued"
	ActionAPITokenRevoked        = "api_token_revoked"
	ActionUserRegistered         = "user_registered"
	ActionLoginFailure           = "login_failure"
)

const (
	ResourceOrganization = "organization"
	ResourceMembership   = "membership"
	ResourceInvitation   = "invitation"
	ResourceUser         = "user"
	ResourceAPIToken     = "api_token"
)

// Metadata encodes alternating key/value pairs as a JSON object for AuditLog.Metadata.
// A trailing key without a value is dropped.
func Metadata(kv ...string) string {
	if len(kv) < 2 {
		return "{}"
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
