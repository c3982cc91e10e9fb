// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package fetch

import (
	"errors"
	"fmt"
)

var (
	errRateLimited      = errors.New("rate limited (HTTP 429)")
	errUnexpectedStatus = errors.New("unexpected response status")
)

// errServerFailure labels a 5xx for retry logging.
func errServerFailure(code int) error {
	return fmt.Errorf("server failure (HTTP %d)", code)
}

// TransientError reports that a fetch failed on a retryable condition
// (timeout, 5xx, rate limit) and exhausted its attempt budget.
type TransientError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fetch %s: retries exhausted after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError reports a non-retryable failure: a 4xx other than 429, a
// malformed request, or an open circuit breaker. The listing or source is
// skipped without retrying.
type FatalError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
