package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/crosslister/listing-worker/internal/jobs"
)

// JobHandler processes one decoded job end to end. A returned error is a
// processor-level fault, not an individual target failure.
type JobHandler interface {
	Process(ctx context.Context, req jobs.JobRequest) (jobs.JobResult, error)
}

// Source is the queue the consumer drains. RedisQueue implements it.
type Source interface {
	Dequeue(ctx context.Context) (raw string, ok bool, err error)
	Ack(ctx context.Context, raw string) error
	RecoverOrphans(ctx context.Context) (int, error)
}

// StatusRecorder mirrors job progress somewhere the frontend can read.
type StatusRecorder interface {
	SetProcessing(ctx context.Context, jobID string)
	SetCompleted(ctx context.Context, jobID string, res jobs.JobResult)
	SetFailed(ctx context.Context, jobID string, errMsg string)
}

// MetricsSink counts job outcomes. Fire-and-forget.
type MetricsSink interface {
	JobCompleted(ctx context.Context, res jobs.JobResult)
	JobFailed(ctx context.Context)
	EnvelopeMalformed(ctx context.Context)
}

// Notifier tells the owner a job finished. Fire-and-forget.
type Notifier interface {
	JobCompleted(ctx context.Context, req jobs.JobRequest, res jobs.JobResult)
}

// Archiver records terminal job outcomes durably.
type Archiver interface {
	Record(ctx context.Context, req jobs.JobRequest, res jobs.JobResult) error
}

// Consumer pulls envelopes off the queue and processes them one at a time,
// end to end. Concurrency happens within a job (the fan-out phase), not
// across jobs, which bounds resource usage per worker instance to one job's
// fan-out. The Status, Metrics, Notify and Archive sinks are optional.
type Consumer struct {
	Log     *slog.Logger
	Source  Source
	Handler JobHandler

	Status  StatusRecorder
	Metrics MetricsSink
	Notify  Notifier
	Archive Archiver

	// ErrorPause is how long to back off after a queue error. Defaults to 2s.
	ErrorPause time.Duration
	// ShutdownGrace is how long an in-flight job may keep running after
	// shutdown begins before its context is cancelled. Defaults to 30s.
	ShutdownGrace time.Duration
}

// Run recovers orphaned in-flight envelopes, then blocks processing jobs
// until the context is cancelled. It returns nil on clean shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	if n, err := c.Source.RecoverOrphans(ctx); err != nil {
		c.Log.Error("recover stuck jobs", "err", err)
	} else if n > 0 {
		c.Log.Info("recovered stuck jobs from previous run", "count", n)
	}

	c.Log.Info("worker started, waiting for jobs")
	for {
		if ctx.Err() != nil {
			c.Log.Info("worker stopping")
			return nil
		}
		raw, ok, err := c.Source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.Log.Info("worker stopping")
				return nil
			}
			c.Log.Error("dequeue failed", "err", err)
			c.pause(ctx)
			continue
		}
		if !ok {
			continue
		}
		c.handle(ctx, raw)
	}
}

func (c *Consumer) handle(parent context.Context, raw string) {
	// The job and its bookkeeping (checkpoints, ack, status) must outlive a
	// shutdown signal: the job gets the grace period to finish, after which
	// its context is cancelled and startup recovery takes over.
	ctx, cancelJob := context.WithCancel(context.WithoutCancel(parent))
	defer cancelJob()
	stop := context.AfterFunc(parent, func() {
		time.Sleep(c.shutdownGrace())
		cancelJob()
	})
	defer stop()

	env, req, err := jobs.DecodeEnvelope([]byte(raw))
	if err != nil {
		// Malformed envelopes can never succeed: drop them rather than
		// letting them cycle through recovery forever.
		c.Log.Error("invalid job data in queue", "err", err, "raw", truncate(raw, 200))
		if c.Metrics != nil {
			c.Metrics.EnvelopeMalformed(ctx)
		}
		if ackErr := c.Source.Ack(ctx, raw); ackErr != nil {
			c.Log.Error("drop malformed envelope", "err", ackErr)
		}
		return
	}

	log := c.Log.With("job_id", req.JobID, "envelope_id", env.ID)
	log.Info("received job", "owner_id", req.OwnerID, "targets", req.Targets, "title", req.Item.Title)
	if c.Status != nil {
		c.Status.SetProcessing(ctx, req.JobID)
	}

	res, err := c.Handler.Process(ctx, req)
	if err != nil {
		// Processor fault: the envelope stays in the in-flight list so a
		// restart re-delivers it; resume skips the phases already done.
		log.Error("job processing failed, leaving envelope in flight", "err", err)
		if c.Status != nil {
			c.Status.SetFailed(ctx, req.JobID, err.Error())
		}
		if c.Metrics != nil {
			c.Metrics.JobFailed(ctx)
		}
		return
	}

	if c.Status != nil {
		c.Status.SetCompleted(ctx, req.JobID, res)
	}
	if c.Metrics != nil {
		c.Metrics.JobCompleted(ctx, res)
	}
	if c.Archive != nil {
		if err := c.Archive.Record(ctx, req, res); err != nil {
			log.Warn("archive job result", "err", err)
		}
	}
	if c.Notify != nil {
		c.Notify.JobCompleted(ctx, req, res)
	}
	if err := c.Source.Ack(ctx, raw); err != nil {
		log.Error("ack envelope", "err", err)
	}
	log.Info("job completed", "success", res.Success,
		"successful", res.SuccessfulPosts, "total", res.TotalTargets)
}

func (c *Consumer) shutdownGrace() time.Duration {
	if c.ShutdownGrace > 0 {
		return c.ShutdownGrace
	}
	return 30 * time.Second
}

func (c *Consumer) pause(ctx context.Context) {
	d := c.ErrorPause
	if d <= 0 {
		d = 2 * time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
