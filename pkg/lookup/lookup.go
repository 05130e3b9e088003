// Package lookup bounds calls to collaborators that may be slow or flaky: each
// attempt gets its own deadline and retries stop after a fixed count.
package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	defaultTimeout  = 2 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 50 * time.Millisecond
)

// Policy configures one bounded lookup.
type Policy struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	return p
}

// Do runs fn until it succeeds, returns a permanent error, or attempts run
// out. Not-found and validation errors are permanent.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	b := retry.WithMaxRetries(uint64(p.Attempts-1), retry.NewExponential(p.Backoff))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil || !transient(ctx, err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func transient(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound, pkgerrors.CodeValidation, pkgerrors.CodeForbidden, pkgerrors.CodeUnauthorized:
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
