// Package status mirrors job progress into Redis records the frontend polls
// (job:<id>). Records are merged into whatever the enqueuing side already
// wrote, so fields this worker does not own survive.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/jobs"
)

// Recorder writes job status records. All writes are best-effort: failures
// are logged, never propagated.
type Recorder struct {
	client redis.Cmdable
	log    *slog.Logger
	ttl    time.Duration
}

func NewRecorder(client redis.Cmdable, log *slog.Logger, ttl time.Duration) *Recorder {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Recorder{client: client, log: log, ttl: ttl}
}

func (r *Recorder) SetProcessing(ctx context.Context, jobID string) {
	r.update(ctx, jobID, map[string]any{
		"status": common.StatusProcessing,
	})
}

func (r *Recorder) SetCompleted(ctx context.Context, jobID string, res jobs.JobResult) {
	fields := map[string]any{
		"status": common.StatusCompleted,
		"result": res,
	}
	if res.Success {
		fields["progress"] = 100
	}
	r.update(ctx, jobID, fields)
}

func (r *Recorder) SetFailed(ctx context.Context, jobID string, errMsg string) {
	r.update(ctx, jobID, map[string]any{
		"status": common.StatusFailed,
		"error":  errMsg,
	})
}

// update merges fields into the existing record and rewrites it with a
// fresh TTL.
func (r *Recorder) update(ctx context.Context, jobID string, fields map[string]any) {
	key := common.JobKeyPrefix + jobID

	record := make(map[string]any)
	existing, err := r.client.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.log.Error("read job status", "job_id", jobID, "err", err)
	}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &record); err != nil {
			r.log.Warn("unreadable job status record, overwriting", "job_id", jobID, "err", err)
			record = make(map[string]any)
		}
	}
	for k, v := range fields {
		record[k] = v
	}
	record["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	b, err := json.Marshal(record)
	if err != nil {
		r.log.Error("marshal job status", "job_id", jobID, "err", err)
		return
	}
	if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
		r.log.Error("write job status", "job_id", jobID, "err", err)
	}
}
