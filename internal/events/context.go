package events

import "context"

type sessionKey struct{}

// WithSessionID tags ctx with the form session on whose behalf work is done,
// so events published further down carry it.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the session tagged by WithSessionID, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
