package gateway

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	cause := fmt.Errorf("boom")

	tr := Transient(cause)
	if !IsTransient(tr) || IsPermanent(tr) {
		t.Fatal("Transient should classify as transient only")
	}
	if !errors.Is(tr, cause) {
		t.Fatal("Transient should unwrap to the cause")
	}

	pe := Permanent(cause)
	if !IsPermanent(pe) || IsTransient(pe) {
		t.Fatal("Permanent should classify as permanent only")
	}
	if !errors.Is(pe, cause) {
		t.Fatal("Permanent should unwrap to the cause")
	}

	wrapped := fmt.Errorf("call failed: %w", Transient(cause))
	if !IsTransient(wrapped) {
		t.Fatal("classification should survive wrapping")
	}

	if IsTransient(cause) || IsPermanent(cause) {
		t.Fatal("unclassified errors are neither transient nor permanent")
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 599} {
		if !retryableStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		if retryableStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}
