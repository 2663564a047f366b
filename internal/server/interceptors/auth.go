package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"orgauth/backend/internal/requestctx"
)

const (
	bearerPrefix = "bearer "
	// APIKeyHeader carries a raw API token for automation clients.
	APIKeyHeader = "x-api-key"
	// OrgHeader selects the active organization for one request.
	OrgHeader = "x-org-id"
)

// AccessValidator validates a session access token. *security.TokenProvider implements it.
type AccessValidator interface {
	ValidateAccess(token string) (userID, orgID string, err error)
}

// APITokenVerifier resolves a raw API token to its owner. *apitoken/service.Service implements it.
type APITokenVerifier interface {
	Authenticate(ctx context.Context, raw string) (userID string, err error)
}

// Attacher puts the caller and the resolved active organization into ctx. *tenancy.Service implements it.
type Attacher interface {
	Authenticate(ctx context.Context, userID string, method requestctx.AuthMethod, orgOverride string) (context.Context, error)
}

// AuthUnary returns a unary server interceptor that authenticates the caller with a Bearer access
// token or an x-api-key API token, then resolves the active organization. The x-org-id header wins
// over the organization carried in the access token. publicMethods is the set of full method names
// that run without credentials (e.g. Register, Login, health checks); bad credentials on a public
// method are ignored.
func AuthUnary(tokens AccessValidator, apiTokens APITokenVerifier, attach Attacher, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		public := publicMethods[info.FullMethod]

		userID, tokenOrg, method, ok := identify(ctx, tokens, apiTokens)
		if !ok {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		override := firstHeader(ctx, OrgHeader)
		if override == "" {
			override = tokenOrg
		}
		if attach == nil {
			return handler(requestctx.WithIdentity(ctx, userID, method), req)
		}
		ctx, err := attach.Authenticate(ctx, userID, method, override)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func identify(ctx context.Context, tokens AccessValidator, apiTokens APITokenVerifier) (userID, orgID string, method requestctx.AuthMethod, ok bool) {
	if token := extractBearer(ctx); token != "" && tokens != nil {
		userID, orgID, err := tokens.ValidateAccess(token)
		if err == nil {
			return userID, orgID, requestctx.AuthSession, true
		}
	}
	if raw := firstHeader(ctx, APIKeyHeader); raw != "" && apiTokens != nil {
		userID, err := apiTokens.Authenticate(ctx, raw)
		if err == nil {
			return userID, "", requestctx.AuthAPIToken, true
		}
	}
	return "", "", "", false
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	v := firstHeader(ctx, "authorization")
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func firstHeader(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
