package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Supervise runs fn and restarts it after delay when it fails or panics,
// at most maxRestarts times. It returns nil when fn returns cleanly or ctx
// is done, and the last error once the restarts are used up.
func Supervise(ctx context.Context, name string, maxRestarts int, delay time.Duration, fn func(context.Context) error) error {
	logger := log.With().Str("component", "supervisor").Str("loop", name).Logger()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(maxRestarts)),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		err := protect(ctx, fn)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Error().Err(err).Dur("restart_in", wait).Msg("Loop failed, restarting")
	})

	if err != nil && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Int("max_restarts", maxRestarts).Msg("Loop gave up")
	}
	return err
}

func protect(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
