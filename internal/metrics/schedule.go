package metrics

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alphagbm/analysiscore/internal/logging"
)

const defaultSummaryIntervalSeconds = 300

// ScheduleSummaryLog arranges for a summary snapshot to be logged
// periodically. If sched is non-nil, the summary is registered as a cron
// entry (matching the teacher's scheduler idiom); otherwise it falls back
// to a standalone time.Ticker loop bound to ctx, so the collector works
// without a cron instance.
func (c *Collector) ScheduleSummaryLog(ctx context.Context, sched *cron.Cron, logger *logging.Logger, intervalSeconds int) {
	if intervalSeconds <= 0 {
		intervalSeconds = defaultSummaryIntervalSeconds
	}

	logSummary := func() {
		s := c.Summarize()
		logger.WithFields(map[string]interface{}{
			"uptime_seconds": s.UptimeSeconds,
			"total_calls":    s.TotalCalls,
			"cache_hit_rate": s.CacheHitRate,
			"failure_rate":   s.FailureRate,
			"providers":      s.ProviderHealth,
		}).Info("market data metrics summary")
	}

	if sched != nil {
		spec := "@every " + time.Duration(intervalSeconds*int(time.Second)).String()
		sched.AddFunc(spec, logSummary)
		return
	}

	go func() {
		ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logSummary()
			}
		}
	}()
}
