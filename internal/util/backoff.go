package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

type BackoffFactory func() backoff.BackOff

// NewBackoffFactory creates a new BackoffFactory based on a backoff.ExponentialBackoff
//
// A Multiplier of 1.0 gives a constant interval, with the randomization and maximum elapsed time that
// backoff.ConstantBackOff lacks.
func NewBackoffFactory(multiplier float64, maxElapsedTime, interval time.Duration, maxRetries uint64) BackoffFactory {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.Multiplier = multiplier
		bo.MaxElapsedTime = maxElapsedTime
		bo.InitialInterval = interval
		bo.Reset() // Reset is required to make the InitialInterval change take effect.
		if maxRetries == 0 {
			return bo
		}
		return backoff.WithMaxRetries(bo, maxRetries)
	}
}

// RetryOpen calls open until it succeeds, the backoff gives up or ctx is done.  It is meant for opening
// listeners, where the address may be held for a short while by a previous process.
func RetryOpen(ctx context.Context, bf BackoffFactory, logger logrus.FieldLogger, what string, open func() error) error {
	bo := backoff.WithContext(bf(), ctx)
	return backoff.RetryNotify(open, bo, func(err error, next time.Duration) {
		logger.WithError(err).WithField("retry-in", next).Warnf("Failed to open %s, retrying", what)
	})
}
