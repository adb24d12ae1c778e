// Package retry retries transient key service failures on behalf of callers.
// The envelope package itself never retries; policy belongs to the caller.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
)

type BackOffOpts struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

var DefaultBackOffOpts = BackOffOpts{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     3 * time.Second,
	MaxElapsedTime:  10 * time.Second,
}

// ShouldRetry reports whether err is a key service error KMS might not
// repeat: throttling, internal errors and transport failures.
func ShouldRetry(err error) bool {
	var kerr *envelope.KeyServiceError
	return errors.As(err, &kerr) && kerr.Retryable()
}

// Retrier runs an operation until it succeeds, fails permanently or the
// backoff gives up.
type Retrier struct {
	opts        BackOffOpts
	shouldRetry func(error) bool
	log         logrus.FieldLogger
	sleep       func(context.Context, time.Duration) error
}

func NewRetrier(opts BackOffOpts, log logrus.FieldLogger) *Retrier {
	return &Retrier{opts: opts, shouldRetry: ShouldRetry, log: log, sleep: sleepCtx}
}

// Do calls f until it returns nil or a non-retryable error. It returns the
// last error and the number of attempts made.
func (r *Retrier) Do(ctx context.Context, f func(context.Context) error) (int, error) {
	b := r.newBackOff()
	b.Reset()
	numTries := 0
	for {
		numTries++
		err := f(ctx)
		if err == nil {
			return numTries, nil
		}
		if !r.shouldRetry(err) {
			return numTries, err
		}
		next := b.NextBackOff()
		if next == backoff.Stop {
			r.log.WithError(err).WithField("tries", numTries).Warn("giving up")
			return numTries, err
		}
		r.log.WithError(err).WithFields(logrus.Fields{
			"tries": numTries,
			"wait":  next.String(),
		}).Info("retrying")
		if serr := r.sleep(ctx, next); serr != nil {
			return numTries, err
		}
	}
}

func (r *Retrier) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval
	b.MaxElapsedTime = r.opts.MaxElapsedTime
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
