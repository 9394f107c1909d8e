package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// HeaderConfirm carries the user's answer to a pending confirmation.
const HeaderConfirm = "X-Bsqa-Confirm"

// ConfirmationMiddleware turns a ?confirm= query parameter (or the
// X-Bsqa-Confirm header) into a request-scoped confirmation port. Without
// either, the port answers CONFIRMATION_REQUIRED so the client can ask the
// user and retry.
func ConfirmationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		answer := ParseAnswer(r.URL.Query().Get("confirm"))
		if answer == nil {
			answer = ParseAnswer(r.Header.Get(HeaderConfirm))
		}
		next.ServeHTTP(w, r.WithContext(WithAnswer(r.Context(), answer)))
	})
}

// WithAnswer installs an answer-carrying confirmation port on ctx.
func WithAnswer(ctx context.Context, answer *bool) context.Context {
	return core.WithConfirmation(ctx, core.AnswerConfirmation{Answer: answer})
}

// ParseAnswer parses a boolean answer; anything unparsable means no answer.
func ParseAnswer(s string) *bool {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &v
}
