package core

import (
	"errors"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatValidation,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatValidation, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := ErrStorage(CodeStorageWrite, "msg")
	err.WithDetail("key", "bsqaConfig")
	if err.Details == nil || err.Details["key"] != "bsqaConfig" {
		t.Fatalf("expected details to be set")
	}
}

func TestErrorFactories(t *testing.T) {
	if ErrValidation("C", "m").Retryable {
		t.Fatalf("validation should not be retryable")
	}
	if !ErrExecution("C", "m").Retryable {
		t.Fatalf("execution should be retryable")
	}
	if !ErrNetwork("m").Retryable {
		t.Fatalf("network should be retryable")
	}
	if !ErrTimeout("m").Retryable {
		t.Fatalf("timeout should be retryable")
	}
	if ErrAuth("m").Retryable {
		t.Fatalf("auth should not be retryable")
	}
	if ErrConflict("C", "m").Retryable {
		t.Fatalf("conflict should not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrNetwork("m")) {
		t.Fatalf("expected retryable error")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("expected non-domain error to be non-retryable")
	}
}

func TestGetCategory(t *testing.T) {
	if GetCategory(ErrNotFound("session", "x")) != ErrCatNotFound {
		t.Fatalf("expected not_found category")
	}
	if GetCategory(errors.New("plain")) != ErrCatInternal {
		t.Fatalf("expected internal category for non-domain error")
	}
	if !IsCategory(ErrNavigationCancelled, ErrCatCancelled) {
		t.Fatalf("expected category match")
	}
}

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	wrapped := ErrConflict(CodeStaleResponse, "load superseded").WithCause(errors.New("gen 1 < 2"))
	if !errors.Is(wrapped, ErrStaleResponse) {
		t.Fatalf("expected stale response to match by category and code")
	}
}
