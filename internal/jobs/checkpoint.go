package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crosslister/listing-worker/internal/common"
)

// CheckpointStore persists per-job state so a partially completed job can be
// resumed after a crash. Checkpointing is a best-effort durability aid, not a
// correctness gate: Save never fails the job and Load treats unreadable
// state as absent.
type CheckpointStore interface {
	// Save persists the full state, overwriting any prior value.
	Save(ctx context.Context, state *JobState)
	// Load returns the checkpointed state, or nil for a fresh start.
	Load(ctx context.Context, jobID string) *JobState
	// Clear removes the checkpoint.
	Clear(ctx context.Context, jobID string)
}

// RedisCheckpointStore stores JobState as JSON under job:<id>:state with a
// multi-day TTL to bound storage growth for abandoned jobs.
type RedisCheckpointStore struct {
	client redis.Cmdable
	log    *slog.Logger
	ttl    time.Duration
}

var _ CheckpointStore = (*RedisCheckpointStore)(nil)

// NewRedisCheckpointStore creates a checkpoint store on the given client.
// The caller owns the client lifecycle.
func NewRedisCheckpointStore(client redis.Cmdable, log *slog.Logger, ttl time.Duration) *RedisCheckpointStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisCheckpointStore{client: client, log: log, ttl: ttl}
}

func stateKey(jobID string) string {
	return common.JobKeyPrefix + jobID + common.StateKeySuffix
}

func (s *RedisCheckpointStore) Save(ctx context.Context, state *JobState) {
	state.CheckpointAt = time.Now().UTC()
	b, err := json.Marshal(state)
	if err != nil {
		s.log.Error("marshal checkpoint", "job_id", state.JobID, "err", err)
		return
	}
	if err := s.client.Set(ctx, stateKey(state.JobID), b, s.ttl).Err(); err != nil {
		s.log.Error("save checkpoint", "job_id", state.JobID, "err", err)
		return
	}
	s.log.Debug("checkpoint saved", "job_id", state.JobID, "phase", state.Phase)
}

func (s *RedisCheckpointStore) Load(ctx context.Context, jobID string) *JobState {
	b, err := s.client.Get(ctx, stateKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		s.log.Error("load checkpoint", "job_id", jobID, "err", err)
		return nil
	}
	var state JobState
	if err := json.Unmarshal(b, &state); err != nil {
		s.log.Error("decode checkpoint", "job_id", jobID, "err", err)
		return nil
	}
	return &state
}

func (s *RedisCheckpointStore) Clear(ctx context.Context, jobID string) {
	if err := s.client.Del(ctx, stateKey(jobID)).Err(); err != nil {
		s.log.Error("clear checkpoint", "job_id", jobID, "err", err)
	}
}
