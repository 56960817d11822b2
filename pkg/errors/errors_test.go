package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code   Code
		status int
		retry  bool
	}{
		{CodeValidation, http.StatusBadRequest, false},
		{CodeUnauthorized, http.StatusUnauthorized, false},
		{CodeNotFound, http.StatusNotFound, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, false},
		{CodeInternal, http.StatusInternalServerError, true},
		{CodeDependency, http.StatusServiceUnavailable, true},
	}
	for _, tc := range tests {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.status, meta.HTTPStatus)
		}
		if meta.Retryable != tc.retry {
			t.Fatalf("%s: expected retryable=%v", tc.code, tc.retry)
		}
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestRetryableClassification(t *testing.T) {
	if Retryable(New(CodeValidation, "bad input")) {
		t.Fatal("validation errors must never be retried")
	}
	if Retryable(New(CodeNotFound, "missing stop")) {
		t.Fatal("not-found errors must never be retried")
	}
	if !Retryable(New(CodeDependency, "redis down")) {
		t.Fatal("dependency errors should be retryable")
	}
	if !Retryable(stdErrors.New("plain network error")) {
		t.Fatal("untyped errors default to retryable")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeDependency, cause, "calling pubsub")
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be discoverable")
	}
	if As(fmt.Errorf("outer: %w", err)).Code() != CodeDependency {
		t.Fatal("expected typed error through wrapping")
	}
}
