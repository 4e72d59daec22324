package repository

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mentorlink/internal/logger"
)

var ErrNotFound = errors.New("not found")

const (
	retryMaxAttempts   = 3
	retryBaseDelay     = 200 * time.Millisecond
	retryBackoffFactor = 1.5
)

// isTransient classifies errors worth retrying: connection and timeout
// class failures. Validation and not-found errors propagate immediately.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions; 57P01 is server shutdown.
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return true
		}
		return pgErr.Code == "57P01"
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// withRetry runs op up to retryMaxAttempts times with exponential backoff
// (200ms base, x1.5 per attempt), retrying only transient errors. All
// repository operations go through this single decorator instead of
// duplicating backoff logic at call sites.
func withRetry(ctx context.Context, name string, op func(context.Context) error) error {
	delay := retryBaseDelay
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil || !isTransient(err) || attempt >= retryMaxAttempts {
			return err
		}
		logger.Errorf("%s: transient error (attempt %d/%d), retrying in %v: %v",
			name, attempt, retryMaxAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
		delay = time.Duration(float64(delay) * retryBackoffFactor)
	}
}
