package errors

import (
	"errors"
	"fmt"
)

// Infrastructure sentinels shared by the store and syncbus backends.
var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
)

// Code identifies one failure kind. Codes are stable strings so callers can
// translate them to whatever boundary representation they need.
type Code string

// Domain rejections. Deterministic: retrying the identical request fails
// again unless external state changes.
const (
	CodeCouponNotFound      Code = "COUPON_NOT_FOUND"
	CodeCouponNotAvailable  Code = "COUPON_NOT_AVAILABLE"
	CodeAlreadyIssued       Code = "COUPON_ALREADY_ISSUED"
	CodeSoldOut             Code = "COUPON_SOLD_OUT"
	CodeGrantNotFound       Code = "GRANT_NOT_FOUND"
	CodeGrantNotUsable      Code = "GRANT_NOT_USABLE"
	CodeProductNotFound     Code = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeMaxBalanceExceeded  Code = "MAX_BALANCE_EXCEEDED"
)

// Contention failures. VersionConflict and LockTimeout are transient and
// retried by the executor; ConcurrencyExhausted is the terminal outcome after
// the retry budget is spent and means "try the whole request again later".
const (
	CodeVersionConflict      Code = "VERSION_CONFLICT"
	CodeLockTimeout          Code = "LOCK_TIMEOUT"
	CodeConcurrencyExhausted Code = "CONCURRENCY_EXHAUSTED"
)

// Error is the tagged error type used across go-claim. Retryable tells the
// retry loop mechanically whether looping can help, so callers never have to
// pattern-match on error identity.
type Error struct {
	Code      Code
	Key       string
	Retryable bool
	msg       string
	cause     error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key %q)", e.Code, e.msg, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports equality by code, so errors.Is works against template errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New returns a domain rejection with the given code.
func New(code Code, key, msg string) *Error {
	return &Error{Code: code, Key: key, msg: msg}
}

// Conflict returns a retryable version-conflict error for key.
func Conflict(key string) *Error {
	return &Error{Code: CodeVersionConflict, Key: key, Retryable: true, msg: "conditional write lost the race"}
}

// LockTimeout returns a retryable lock-acquisition timeout for key.
func LockTimeout(key string, cause error) *Error {
	return &Error{Code: CodeLockTimeout, Key: key, Retryable: true, msg: "lock acquisition timed out", cause: cause}
}

// Exhausted wraps the last conflict once the retry budget is spent. It is not
// retryable at this layer; callers may re-run the whole logical request.
func Exhausted(key string, attempts int, cause error) *Error {
	return &Error{
		Code:  CodeConcurrencyExhausted,
		Key:   key,
		msg:   fmt.Sprintf("gave up after %d attempts", attempts),
		cause: cause,
	}
}

// IsRetryable reports whether err is a transient contention failure.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeVersionConflict
}

// IsDomain reports whether err is a deterministic domain rejection.
func IsDomain(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case CodeVersionConflict, CodeLockTimeout, CodeConcurrencyExhausted:
		return false
	}
	return true
}

// CodeOf extracts the Code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
