package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Pinger is implemented by connection pools such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when p cannot be pinged.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// RedisCheck reports unhealthy when rdb does not answer PING.
func RedisCheck(rdb redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis ping")
		}
		return nil
	}
}

// GoroutineCountCheck reports unhealthy when the number of goroutines
// exceeds threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck reports unhealthy when any recent GC pause exceeds
// threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}
