package auth

import "context"

type sessionContextKey struct{}
type tokenContextKey struct{}

// ContextWithSession attaches verified session claims to the context.
func ContextWithSession(ctx context.Context, claims SessionClaims) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &claims)
}

// SessionFromContext extracts the verified session claims from the context.
func SessionFromContext(ctx context.Context) (SessionClaims, bool) {
	if ctx == nil {
		return SessionClaims{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*SessionClaims)
	if !ok || v == nil {
		return SessionClaims{}, false
	}
	return *v, true
}

// IdentityIDFromContext returns the acting identity id when a session is
// attached and well formed.
func IdentityIDFromContext(ctx context.Context) (int64, bool) {
	claims, ok := SessionFromContext(ctx)
	if !ok {
		return 0, false
	}
	id, err := claims.IdentityID()
	if err != nil {
		return 0, false
	}
	return id, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
