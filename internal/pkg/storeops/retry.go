package storeops

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bluerat1/uniclaim-server/internal/pkg/apperrors"
)

// DefaultAttempts is the number of tries for a transient store failure.
const DefaultAttempts = 3

// DefaultBaseDelay is the delay before the first retry; subsequent
// delays double (1s, 2s, 4s).
const DefaultBaseDelay = time.Second

// Runner retries individual store operations with exponential backoff.
// Permission and quota errors are never retried: they propagate
// immediately, and quota errors additionally feed the QuotaMonitor.
type Runner struct {
	attempts  int
	baseDelay time.Duration
	quota     *QuotaMonitor
	logger    zerolog.Logger
}

// NewRunner creates a Runner. quota may be nil when no quota tracking
// is wanted (tests mostly).
func NewRunner(quota *QuotaMonitor, logger zerolog.Logger) *Runner {
	return &Runner{
		attempts:  DefaultAttempts,
		baseDelay: DefaultBaseDelay,
		quota:     quota,
		logger:    logger,
	}
}

// WithBackoff overrides the attempt count and base delay.
func (r *Runner) WithBackoff(attempts int, baseDelay time.Duration) *Runner {
	if attempts > 0 {
		r.attempts = attempts
	}
	r.baseDelay = baseDelay
	return r
}

// Do runs op, retrying transient failures up to the configured number
// of attempts. The backoff doubles between attempts starting from the
// base delay.
func (r *Runner) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var err error
	delay := r.baseDelay

	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		if permanent := r.classify(err); permanent {
			return err
		}

		if attempt == r.attempts {
			break
		}

		r.logger.Warn().
			Err(err).
			Str("operation", name).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Transient store error, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	r.logger.Error().
		Err(err).
		Str("operation", name).
		Int("attempts", r.attempts).
		Msg("Store operation failed after retries")
	return err
}

// classify reports whether err must not be retried. Quota errors are
// recorded on the monitor before returning.
func (r *Runner) classify(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		if r.quota != nil {
			r.quota.RecordQuotaError()
		}
		return true
	case errors.Is(err, apperrors.ErrPermissionDenied):
		return true
	// Business preconditions and validation never benefit from a retry.
	case errors.Is(err, apperrors.ErrValidationFailed),
		errors.Is(err, apperrors.ErrResourceNotFound),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrBadRequest):
		return true
	}
	return false
}
