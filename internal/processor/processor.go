// Package processor drives one listing job through its phases: optimize the
// copy, load credentials, fan out to every target, aggregate. Progress is
// checkpointed after every transition so a crashed job resumes without
// repeating finished work.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/jobs"
	"github.com/crosslister/listing-worker/internal/optimize"
	"github.com/crosslister/listing-worker/internal/poster"
	"github.com/crosslister/listing-worker/internal/retry"
	"github.com/crosslister/listing-worker/internal/sessions"
)

// Processor is the per-job state machine.
type Processor struct {
	log         *slog.Logger
	checkpoints jobs.CheckpointStore
	optimizer   optimize.Optimizer
	sessions    sessions.Provider
	posters     *poster.Registry
	retry       retry.Policy
	postTimeout time.Duration
}

func New(
	log *slog.Logger,
	checkpoints jobs.CheckpointStore,
	optimizer optimize.Optimizer,
	sessionProvider sessions.Provider,
	posters *poster.Registry,
	retryPolicy retry.Policy,
	postTimeout time.Duration,
) *Processor {
	if postTimeout <= 0 {
		postTimeout = 2 * time.Minute
	}
	return &Processor{
		log:         log,
		checkpoints: checkpoints,
		optimizer:   optimizer,
		sessions:    sessionProvider,
		posters:     posters,
		retry:       retryPolicy,
		postTimeout: postTimeout,
	}
}

// Process runs one job end to end, resuming from a checkpoint when one
// exists. A returned error is a processor-level fault: the state is
// checkpointed as failed and the caller decides whether the envelope gets
// re-delivered. Individual target failures never surface here.
func (p *Processor) Process(ctx context.Context, req jobs.JobRequest) (result jobs.JobResult, err error) {
	log := p.log.With("job_id", req.JobID)

	state := p.checkpoints.Load(ctx, req.JobID)
	if state != nil {
		if state.Phase == jobs.PhaseFailed {
			// A failed checkpoint marks an interrupted run, not a verdict.
			// Re-delivery retries from the first phase with no recorded work.
			state.Phase = resumeFrom(state)
			state.LastError = ""
		}
		log.Info("resuming from checkpoint", "phase", state.Phase,
			"pending", state.PendingTargets, "completed", state.CompletedTargets)
	} else {
		state = jobs.NewState(req)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
		if err != nil {
			state.Phase = jobs.PhaseFailed
			state.LastError = err.Error()
			p.checkpoints.Save(ctx, state)
			log.Error("job processing failed", "err", err)
		}
	}()

	if state.Phase == jobs.PhaseStart {
		if err := p.optimizeContent(ctx, log, req, state); err != nil {
			return jobs.JobResult{}, err
		}
	}

	if state.Phase == jobs.PhaseContentReady {
		if err := p.loadCredentials(ctx, log, req, state); err != nil {
			return jobs.JobResult{}, err
		}
	}

	if state.Phase == jobs.PhaseCredentialsReady {
		item := req.Item
		if state.OptimizedItem != nil {
			item = *state.OptimizedItem
		}
		log.Info("posting to targets", "count", len(state.PendingTargets))
		p.fanOut(ctx, log, req, state, item)
		if ctx.Err() != nil {
			return jobs.JobResult{}, fmt.Errorf("job interrupted: %w", ctx.Err())
		}
		now := time.Now().UTC()
		state.Phase = jobs.PhaseCompleted
		state.CompletedAt = &now
		p.checkpoints.Save(ctx, state)
	}

	result = aggregate(state)
	log.Info("job processing complete",
		"successful", result.SuccessfulPosts, "total", result.TotalTargets)
	return result, nil
}

// optimizeContent runs the content optimizer once. The optimizer is a
// quality enhancement, not a correctness requirement: on failure the
// original item is used unchanged and the phase still advances.
func (p *Processor) optimizeContent(ctx context.Context, log *slog.Logger, req jobs.JobRequest, state *jobs.JobState) error {
	if ctx.Err() != nil {
		return fmt.Errorf("job interrupted: %w", ctx.Err())
	}
	optimized, err := p.optimizer.Optimize(ctx, req.Item, state.PendingTargets)
	if err != nil {
		log.Warn("content optimization failed, using original copy", "err", err)
		optimized = req.Item
	}
	state.OptimizedItem = &optimized
	state.Phase = jobs.PhaseContentReady
	p.checkpoints.Save(ctx, state)
	return nil
}

// loadCredentials resolves a credential for every pending target. Targets
// with none available are settled immediately with a permanent failure and
// never reach the posting phase.
func (p *Processor) loadCredentials(ctx context.Context, log *slog.Logger, req jobs.JobRequest, state *jobs.JobState) error {
	if ctx.Err() != nil {
		return fmt.Errorf("job interrupted: %w", ctx.Err())
	}
	creds := make(map[string]jobs.Credential)
	for _, target := range slices.Clone(state.PendingTargets) {
		cred, ok, err := p.sessions.Load(ctx, req.OwnerID, target)
		if err != nil {
			log.Error("load credential", "target", target, "err", err)
			ok = false
		}
		if !ok {
			log.Warn("no credentials for target", "target", target, "owner_id", req.OwnerID)
			state.CompleteTarget(target, jobs.TargetResult{
				Target:  target,
				Success: false,
				Error:   common.ErrNoCredentials,
			})
			continue
		}
		creds[target] = cred
	}
	state.Credentials = creds
	state.Phase = jobs.PhaseCredentialsReady
	p.checkpoints.Save(ctx, state)
	return nil
}

// resumeFrom inspects what a failed checkpoint already recorded. The
// credentials map is non-nil once loadCredentials ran, even when empty.
func resumeFrom(state *jobs.JobState) jobs.Phase {
	switch {
	case state.OptimizedItem == nil:
		return jobs.PhaseStart
	case state.Credentials == nil:
		return jobs.PhaseContentReady
	default:
		return jobs.PhaseCredentialsReady
	}
}

func aggregate(state *jobs.JobState) jobs.JobResult {
	completedAt := time.Now().UTC()
	if state.CompletedAt != nil {
		completedAt = *state.CompletedAt
	}
	return jobs.JobResult{
		JobID:           state.JobID,
		Success:         state.SuccessCount() > 0,
		Results:         state.Results,
		SuccessfulPosts: state.SuccessCount(),
		TotalTargets:    len(state.CompletedTargets) + len(state.PendingTargets),
		CompletedAt:     completedAt,
	}
}
