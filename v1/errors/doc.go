// Package errors defines the go-claim failure taxonomy. Domain rejections and
// contention failures are disjoint families: the former are deterministic and
// surface immediately, the latter carry a Retryable flag the retry executor
// keys off. All errors compose with the standard errors.Is/As machinery.
package errors
