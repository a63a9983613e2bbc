package sheets

import (
	"context"
	"time"
)

// withRetry is the single retry/backoff site for all remote operations.
// Before each attempt the credential is made valid (refreshing if needed);
// an auth-classified failure forces a refresh before the next attempt; other
// failures wait baseDelay*attempt (linear) first. Not-found never retries.
// After the final attempt the last error propagates unchanged in kind.
func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context, token string) error) error {
	var lastErr error
	forceRefresh := false

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		token, err := c.tokens.Token(ctx, forceRefresh)
		if err != nil {
			lastErr = err
			forceRefresh = true
			if attempt == c.maxAttempts {
				break
			}
			if err := sleepContext(ctx, c.baseDelay*time.Duration(attempt)); err != nil {
				return err
			}
			continue
		}
		forceRefresh = false

		err = op(ctx, token)
		if err == nil {
			return nil
		}
		lastErr = err

		switch KindOf(err) {
		case KindNotFound:
			return err
		case KindAuth:
			c.logger.Debug("auth error from record store, forcing token refresh", "attempt", attempt)
			forceRefresh = true
		}
		if attempt == c.maxAttempts {
			break
		}
		if KindOf(err) != KindAuth {
			if err := sleepContext(ctx, c.baseDelay*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
