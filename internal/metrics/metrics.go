// Package metrics counts worker activity in a Redis hash so operators can
// inspect throughput without a metrics stack. Fire-and-forget.
package metrics

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/jobs"
)

// Collector increments counters under a single hash key.
type Collector struct {
	client redis.Cmdable
	log    *slog.Logger
}

func NewCollector(client redis.Cmdable, log *slog.Logger) *Collector {
	return &Collector{client: client, log: log}
}

func (c *Collector) JobCompleted(ctx context.Context, res jobs.JobResult) {
	c.incr(ctx, "jobs_processed", 1)
	if res.Success {
		c.incr(ctx, "jobs_succeeded", 1)
	}
	for target, tr := range res.Results {
		if tr.Success {
			c.incr(ctx, "targets_succeeded:"+target, 1)
		} else {
			c.incr(ctx, "targets_failed:"+target, 1)
		}
	}
}

func (c *Collector) JobFailed(ctx context.Context) {
	c.incr(ctx, "jobs_failed", 1)
}

func (c *Collector) EnvelopeMalformed(ctx context.Context) {
	c.incr(ctx, "envelopes_malformed", 1)
}

func (c *Collector) incr(ctx context.Context, field string, n int64) {
	if err := c.client.HIncrBy(ctx, common.MetricsKey, field, n).Err(); err != nil {
		c.log.Debug("increment metric", "field", field, "err", err)
	}
}
