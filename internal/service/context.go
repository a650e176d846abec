package service

import "context"

// sessionIDKey is an unexported context key type to avoid collisions across packages.
type sessionIDKey struct{}

// WithSessionID returns a child context carrying the session id. An empty id
// returns ctx unchanged.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the session id carried by ctx.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok && id != ""
}
