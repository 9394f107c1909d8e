package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error    string                 `json:"error"`
	Code     string                 `json:"code,omitempty"`
	Category string                 `json:"category,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatConflict:
		if domErr.Code == core.CodeStaleDocument {
			return http.StatusPreconditionFailed, true
		}
		return http.StatusConflict, true
	case core.ErrCatCancelled:
		return http.StatusConflict, true
	case core.ErrCatAuth:
		return http.StatusUnauthorized, true
	case core.ErrCatNetwork, core.ErrCatExecution:
		return http.StatusBadGateway, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps err to a status code and a structured body.
// Non-domain errors become 500 without leaking their text.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		respondJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "request cancelled", Code: core.CodeTimeout})
		return
	}

	status, ok := httpStatusForDomainError(err)
	if !ok {
		s.logger.Error("unhandled error", "path", r.URL.Path, "method", r.Method, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var domErr *core.DomainError
	errors.As(err, &domErr)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "path", r.URL.Path, "code", domErr.Code, "error", err)
	}
	respondJSON(w, status, errorResponse{
		Error:    domErr.Message,
		Code:     domErr.Code,
		Category: string(domErr.Category),
		Details:  domErr.Details,
	})
}
