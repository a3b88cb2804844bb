// Package remote defines the error taxonomy and retry policy shared by all
// external-service adapters (PubMed, CrossRef, OpenAlex, MeSH, embedder).
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TransientError marks a failure worth retrying: network errors, timeouts,
// upstream 5xx responses. Deadline expiry on an adapter call maps here.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient remote failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a malformed upstream response. Retrying cannot help.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent remote failure: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the named operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Permanent wraps err as a PermanentError for the named operation.
func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError. Context
// deadline expiry counts as transient.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// maxAttempts bounds retries per adapter call: one initial try plus two retries.
const maxAttempts = 3

// Retry runs op with exponential backoff, retrying transient failures up to
// three attempts total. Permanent failures and context cancellation stop
// immediately. The last error is returned unchanged so callers can still match
// on the taxonomy.
func Retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(newExponential(), maxAttempts-1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // attempts are bounded by WithMaxRetries
	return b
}
