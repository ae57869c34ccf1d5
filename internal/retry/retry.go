// Package retry implements C1 Retryer: a uniform exponential-backoff
// wrapper for fallible I/O, grounded on the retry loops in
// original_source/etl/extractors/danawa_crawler.py:_fetch_with_retry
// and reddit_collector.py:_fetch_rss_feed, with the retry-vs-connect
// classifier shape borrowed from
// hayakawa99-excavation_service/internal/app/db/db.go:ConnectDatabase.
package retry

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/pkg/logger"
)

// HTTPStatusError lets callers report an upstream HTTP status without
// importing net/http here; the Retryer classifies 5xx and 429 as
// retryable and everything else 4xx as fatal.
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration // honored when StatusCode == 429
}

func (e *HTTPStatusError) Error() string {
	return "upstream returned HTTP " + strconv.Itoa(e.StatusCode)
}

// Classifier decides whether an error from an attempt is retryable,
// and if so, how long the caller should honor as a minimum wait
// (zero when there is no explicit hint).
type Classifier func(err error) (retryable bool, retryAfter time.Duration)

// DefaultClassifier treats HTTPStatusError 5xx/429 and generic
// connection/timeout errors as retryable; validation and malformed
// input are always fatal.
func DefaultClassifier(err error) (bool, time.Duration) {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return true, httpErr.RetryAfter
		case httpErr.StatusCode >= 500:
			logger.Warn("classified retryable error", map[string]interface{}{"code": apperrors.TransientServerError, "status": httpErr.StatusCode})
			return true, 0
		default:
			logger.Warn("classified fatal error", map[string]interface{}{"code": apperrors.PermanentClientError, "status": httpErr.StatusCode})
			return false, 0
		}
	}

	var valErr *apperrors.ValidationError
	if errors.As(err, &valErr) {
		return false, 0
	}
	var normErr *apperrors.NormalizationError
	if errors.As(err, &normErr) {
		return false, 0
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// A hostname that doesn't resolve won't start resolving between
		// attempts a few seconds apart.
		logger.Warn("classified fatal error", map[string]interface{}{"code": apperrors.PermanentDNSFailure, "host": dnsErr.Name})
		return false, 0
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Warn("classified retryable error", map[string]interface{}{"code": apperrors.TransientNetworkTimeout})
		return true, 0
	}

	// Anything else observed at the transport layer (connection
	// refused mid-retry window, EOF) is treated as transient — the
	// classifier errs toward retrying I/O errors it doesn't
	// recognize, since the alternative is silently dropping a record
	// that would have succeeded on the next attempt.
	logger.Warn("classified retryable error", map[string]interface{}{"code": apperrors.TransientConnection})
	return true, 0
}

// Config governs backoff behavior; defaults mirror spec.md §6.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Classifier  Classifier
}

// Retryer executes a fallible attempt up to MaxAttempts times with
// exponential backoff base*2^(i-1), honoring a Retry-After hint and
// observing ctx cancellation between attempts and during waits.
type Retryer struct {
	cfg      Config
	cooldown Cooldown // optional, shared across processes (see cooldown.go)
}

// New builds a Retryer. A nil Classifier falls back to
// DefaultClassifier; a zero MaxAttempts/BaseDelay falls back to
// spec.md's defaults (3 attempts, 5s base).
func New(cfg Config) *Retryer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultClassifier
	}
	return &Retryer{cfg: cfg}
}

// WithCooldown attaches a shared cooldown store (see cooldown.go) so a
// Retry-After observed by one process is honored by the next run even
// across restarts. Optional: a nil cooldown behaves exactly as before.
func (r *Retryer) WithCooldown(c Cooldown) *Retryer {
	r.cooldown = c
	return r
}

// Do runs attempt up to MaxAttempts times. It returns nil on the first
// success, or the final attempt's error. Cancellation is observed
// between attempts and while waiting out backoff.
func (r *Retryer) Do(ctx context.Context, host string, attempt func(ctx context.Context) error) error {
	if r.cooldown != nil {
		if wait := r.cooldown.Remaining(ctx, host); wait > 0 {
			logger.Warn("honoring shared cooldown before attempt", map[string]interface{}{"host": host, "wait": wait.String()})
			if err := sleepOrCancel(ctx, wait); err != nil {
				return err
			}
		}
	}

	var lastErr error
	for i := 1; i <= r.cfg.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		retryable, retryAfter := r.cfg.Classifier(lastErr)
		if !retryable {
			return lastErr
		}
		if i == r.cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(r.cfg.BaseDelay, i)
		if retryAfter > delay {
			delay = retryAfter
		}
		if r.cooldown != nil && retryAfter > 0 {
			r.cooldown.Set(ctx, host, retryAfter)
		}

		logger.Warn("attempt failed, retrying", map[string]interface{}{
			"host": host, "attempt": i, "max_attempts": r.cfg.MaxAttempts, "delay": delay.String(), "error": lastErr.Error(),
		})

		if err := sleepOrCancel(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
