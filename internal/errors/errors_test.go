package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAuthError(t *testing.T) {
	cause := errors.New("underlying auth error")
	err := NewAuthError(ErrCodeInvalidCredential, "test auth error", cause)

	if err.Category != CategoryAuth {
		t.Errorf("Expected category %s, got %s", CategoryAuth, err.Category)
	}
	if err.Code != ErrCodeInvalidCredential {
		t.Errorf("Expected code %s, got %s", ErrCodeInvalidCredential, err.Code)
	}
	if err.Message != "test auth error" {
		t.Errorf("Expected message 'test auth error', got '%s'", err.Message)
	}
	if err.Cause != cause {
		t.Error("Expected cause to be set")
	}
}

func TestNewValidationError(t *testing.T) {
	cause := errors.New("underlying validation error")
	err := NewValidationError(ErrCodeInvalidFormat, "test validation error", cause)

	if err.Category != CategoryValidation {
		t.Errorf("Expected category %s, got %s", CategoryValidation, err.Category)
	}
	if err.Code != ErrCodeInvalidFormat {
		t.Errorf("Expected code %s, got %s", ErrCodeInvalidFormat, err.Code)
	}
	if err.Cause != cause {
		t.Error("Expected cause to be set")
	}
}

func TestNewAuthorizationError(t *testing.T) {
	err := NewAuthorizationError("not a participant")

	if err.Category != CategoryAuthorization {
		t.Errorf("Expected category %s, got %s", CategoryAuthorization, err.Category)
	}
	if err.Code != ErrCodeAccessDenied {
		t.Errorf("Expected code %s, got %s", ErrCodeAccessDenied, err.Code)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("conversation not found")

	if err.Category != CategoryNotFound {
		t.Errorf("Expected category %s, got %s", CategoryNotFound, err.Category)
	}
	if err.Code != ErrCodeNotFound {
		t.Errorf("Expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
}

func TestNewStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError("failed to insert message", cause)

	if err.Category != CategoryStore {
		t.Errorf("Expected category %s, got %s", CategoryStore, err.Category)
	}
	if err.Code != ErrCodeStoreFault {
		t.Errorf("Expected code %s, got %s", ErrCodeStoreFault, err.Code)
	}
	if err.Cause != cause {
		t.Error("Expected cause to be set")
	}
}

func TestErrorFormatting(t *testing.T) {
	withCause := NewStoreError("write failed", errors.New("socket closed"))
	want := "STORE_FAULT: write failed (caused by: socket closed)"
	if withCause.Error() != want {
		t.Errorf("Expected '%s', got '%s'", want, withCause.Error())
	}

	withoutCause := NewNotFoundError("user not found")
	want = "NOT_FOUND: user not found"
	if withoutCause.Error() != want {
		t.Errorf("Expected '%s', got '%s'", want, withoutCause.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStoreError("wrapper", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause through Unwrap")
	}
	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}

	if NewNotFoundError("no cause").Unwrap() != nil {
		t.Error("Expected Unwrap to return nil when no cause is set")
	}
}

func TestIsFatal(t *testing.T) {
	if !NewAuthError(ErrCodeInvalidCredential, "bad token", nil).IsFatal() {
		t.Error("Expected auth errors to be fatal for the connection")
	}
	if NewValidationError(ErrCodeInvalidFormat, "bad payload", nil).IsFatal() {
		t.Error("Expected validation errors to be non-fatal")
	}
	if NewStoreError("db down", nil).IsFatal() {
		t.Error("Expected store errors to be non-fatal")
	}
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	inner := NewValidationError(ErrCodeMissingField, "conversationId", nil)
	wrapped := fmt.Errorf("dropping frame: %w", inner)

	var chatErr *ChatError
	if !errors.As(wrapped, &chatErr) {
		t.Fatal("Expected errors.As to find ChatError through fmt wrapping")
	}
	if chatErr.Code != ErrCodeMissingField {
		t.Errorf("Expected code %s, got %s", ErrCodeMissingField, chatErr.Code)
	}
}

func TestSentinelIdentity(t *testing.T) {
	sentinel := NewNotFoundError("message not found")
	wrapped := fmt.Errorf("lookup: %w", sentinel)

	if !errors.Is(wrapped, sentinel) {
		t.Error("Expected errors.Is to match the sentinel value through wrapping")
	}
	if errors.Is(wrapped, NewNotFoundError("message not found")) {
		t.Error("Expected distinct instances not to match by value")
	}
}

func TestErrInvalidEventFormat(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := ErrInvalidEventFormat("sendMessage", cause)

	if err.Category != CategoryValidation {
		t.Errorf("Expected category %s, got %s", CategoryValidation, err.Category)
	}
	if err.Code != ErrCodeInvalidFormat {
		t.Errorf("Expected code %s, got %s", ErrCodeInvalidFormat, err.Code)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected the cause to be reachable through Unwrap")
	}
}
