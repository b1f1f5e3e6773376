package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultAttempts = 3
	defaultDelay    = 50 * time.Millisecond
)

// Retry wraps a Persistence with a small bounded backoff for transient
// failures. Exhausted retries escalate to UnavailableErr; the callers of the
// stores never see the intermediate attempts.
type Retry struct {
	delegate Persistence
	attempts int
	delay    time.Duration
}

// WithRetry wraps the given persistence. Non-positive arguments fall back to defaults.
func WithRetry(delegate Persistence, attempts int, delay time.Duration) *Retry {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if delay <= 0 {
		delay = defaultDelay
	}
	return &Retry{
		delegate: delegate,
		attempts: attempts,
		delay:    delay,
	}
}

// RetryShard wraps every persistence produced by the given shard.
func RetryShard(shard Shard, attempts int, delay time.Duration) Shard {
	return func(s string) (Persistence, error) {
		p, err := shard(s)
		if err != nil {
			return nil, err
		}
		return WithRetry(p, attempts, delay), nil
	}
}

func (r *Retry) Store(k Key, value interface{}) error {
	return r.execute("store", k, func() error {
		return r.delegate.Store(k, value)
	})
}

func (r *Retry) Load(k Key, value interface{}) error {
	return r.execute("load", k, func() error {
		return r.delegate.Load(k, value)
	})
}

func (r *Retry) execute(op string, k Key, do func() error) error {
	var err error
	delay := r.delay
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = do()
		if err == nil {
			return nil
		}
		// a missing key is a terminal answer, not a transient fault
		if errors.Is(err, NotFoundErr) || errors.Is(err, UnrecoverableErr) {
			return err
		}
		if attempt < r.attempts {
			log.Warn().
				Str("op", op).
				Str("key", k.Path()).
				Int("attempt", attempt).
				Err(err).
				Msg("retrying storage operation")
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("%s '%s' failed after %d attempts: %v: %w", op, k.Path(), r.attempts, err, UnavailableErr)
}
