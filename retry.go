// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs fn up to attempts times with exponential backoff, starting at
// delay. The core never retries on its own; callers apply this explicitly
// around any operation they want retried. Retrying stops as soon as the
// context is done, returning the context error wrapped with the last
// operation error if there was one.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		return fmt.Errorf("attempts must be positive, got %d", attempts)
	}

	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(delay),
		// Attempt count bounds the retries, not wall-clock time.
		backoff.WithMaxElapsedTime(0),
	)

	var lastErr error
	operation := func() error {
		lastErr = fn(ctx)
		return lastErr
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(expBackOff, ctx), uint64(attempts-1)))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ctx.Err()) && !errors.Is(lastErr, err):
		// Canceled between attempts; surface the last operation error too.
		return fmt.Errorf("retry aborted: %w (last error: %w)", err, lastErr)
	default:
		return fmt.Errorf("all %d attempts failed: %w", attempts, err)
	}
}
