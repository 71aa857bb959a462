package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestConflictIsRetryable(t *testing.T) {
	err := Conflict("coupon:1")
	if !IsRetryable(err) {
		t.Fatal("conflict should be retryable")
	}
	if !IsConflict(err) {
		t.Fatal("conflict should report IsConflict")
	}
	if IsDomain(err) {
		t.Fatal("conflict is not a domain rejection")
	}
}

func TestDomainRejectionNotRetryable(t *testing.T) {
	err := New(CodeSoldOut, "coupon:7", "quota exhausted")
	if IsRetryable(err) {
		t.Fatal("domain rejection must not be retryable")
	}
	if !IsDomain(err) {
		t.Fatal("expected domain rejection")
	}
	if CodeOf(err) != CodeSoldOut {
		t.Fatalf("CodeOf: got %q", CodeOf(err))
	}
}

func TestExhaustedWrapsCause(t *testing.T) {
	cause := Conflict("stock:3")
	err := Exhausted("stock:3", 5, cause)
	if IsRetryable(err) {
		t.Fatal("exhausted must not be retryable")
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("exhausted should unwrap to the last conflict")
	}
	if CodeOf(err) != CodeConcurrencyExhausted {
		t.Fatalf("CodeOf: got %q", CodeOf(err))
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeInsufficientStock, "product:1", "short")
	b := New(CodeInsufficientStock, "product:2", "short elsewhere")
	if !stderrors.Is(a, b) {
		t.Fatal("errors with the same code should match")
	}
	c := New(CodeInvalidAmount, "", "bad amount")
	if stderrors.Is(a, c) {
		t.Fatal("different codes must not match")
	}
}

func TestWrappedErrorSurvivesFmt(t *testing.T) {
	inner := LockTimeout("coupon:9", ErrTimeout)
	wrapped := fmt.Errorf("issue: %w", inner)
	if !IsRetryable(wrapped) {
		t.Fatal("retryable flag should survive wrapping")
	}
	if !stderrors.Is(wrapped, ErrTimeout) {
		t.Fatal("cause should unwrap through the chain")
	}
	if CodeOf(wrapped) != CodeLockTimeout {
		t.Fatalf("CodeOf: got %q", CodeOf(wrapped))
	}
}
