package taskengine

import (
	"context"
	"fmt"
	"time"
)

// sleepCtx sleeps for d or returns ctx's error if it is cancelled first —
// used for every scripted delay in the CACHED/WAITING progress schedules so
// shutdown doesn't leave a worker blocked past its deadline.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("taskengine: interrupted during scripted delay: %w", ctx.Err())
	}
}
