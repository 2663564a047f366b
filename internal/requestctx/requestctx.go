// Package requestctx carries the authenticated user and the active organization
// through a request. Values are set by the transport layer and the org context
// resolver and read by the permission guard; nothing is held in package state.
package requestctx

import "context"

type contextKey struct{ name string }

var (
	userIDKey = contextKey{"user_id"}
	orgIDKey  = contextKey{"org_id"}
	authKey   = contextKey{"auth_method"}
)

// AuthMethod records how the caller proved its identity.
type AuthMethod string

const (
	AuthSession  AuthMethod = "session"
	AuthAPIToken AuthMethod = "api_token"
)

// WithIdentity returns a context carrying the authenticated user.
func WithIdentity(ctx context.Context, userID string, method AuthMethod) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, authKey, method)
}

// WithActiveOrg returns a context carrying the resolved organization. An empty
// orgID clears any previously attached organization.
func WithActiveOrg(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// GetUserID returns the user_id from context and true if set and non-empty.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// GetOrgID returns the active org_id from context and true if set and non-empty.
func GetOrgID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(orgIDKey).(string)
	return v, ok && v != ""
}

// GetAuthMethod returns how the caller authenticated, or "" when anonymous.
func GetAuthMethod(ctx context.Context) AuthMethod {
	v, _ := ctx.Value(authKey).(AuthMethod)
	return v
}
