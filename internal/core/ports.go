package core

import (
	"context"
	"time"
)

// ConfirmationPort asks the user a yes/no question. Adapters decide how:
// a terminal prompt, a TUI modal, or an answer carried by an HTTP request.
type ConfirmationPort interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ConfirmFunc adapts a function to ConfirmationPort.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

// Confirm implements ConfirmationPort.
func (f ConfirmFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// AnswerConfirmation is a port whose answer was collected before the call.
// A nil Answer means nobody has been asked yet.
type AnswerConfirmation struct {
	Answer *bool
}

// Confirm implements ConfirmationPort.
func (a AnswerConfirmation) Confirm(_ context.Context, _ string) (bool, error) {
	if a.Answer == nil {
		return false, ErrConfirmationRequired
	}
	return *a.Answer, nil
}

// Answer returns an AnswerConfirmation holding v.
func Answer(v bool) AnswerConfirmation {
	return AnswerConfirmation{Answer: &v}
}

type confirmationKey struct{}

// WithConfirmation returns a context carrying a request-scoped confirmation
// port. It takes precedence over the port a session was built with.
func WithConfirmation(ctx context.Context, port ConfirmationPort) context.Context {
	return context.WithValue(ctx, confirmationKey{}, port)
}

// ConfirmationFromContext returns the request-scoped port, if any.
func ConfirmationFromContext(ctx context.Context) (ConfirmationPort, bool) {
	port, ok := ctx.Value(confirmationKey{}).(ConfirmationPort)
	return port, ok && port != nil
}

// Clock abstracts time for export timestamps and change markers.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
