package sources

import (
	"context"
	"errors"
	"time"

	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
)

// FetchWithRetry runs f.Fetch, retrying transient failures with exponential
// backoff. Only errors marked ErrSourceUnavailable are retried; permanent
// failures (bad credentials, malformed files) surface immediately.
func FetchWithRetry(ctx context.Context, f Fetcher, date time.Time, attempts int, baseDelay time.Duration) ([]RawRow, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		rows, err := f.Fetch(ctx, date)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if !errors.Is(err, models.ErrSourceUnavailable) {
			return nil, err
		}
		if attempt == attempts {
			break
		}
		logger.L.Warn("Source fetch failed, retrying",
			"source", f.Source(), "attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
