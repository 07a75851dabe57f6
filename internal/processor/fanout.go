package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/crosslister/listing-worker/internal/common"
	"github.com/crosslister/listing-worker/internal/jobs"
	"github.com/crosslister/listing-worker/internal/poster"
)

// fanOut posts to every pending target concurrently, one goroutine per
// target. A target's failure, panic, or timeout settles that target only;
// siblings keep running. The state is updated and re-checkpointed under the
// mutex as each target completes, so a crash mid-fan-out loses at most the
// targets still in flight. Targets aborted by a shutdown do not settle: they
// stay pending so re-delivery retries them.
func (p *Processor) fanOut(ctx context.Context, log *slog.Logger, req jobs.JobRequest, state *jobs.JobState, item jobs.ItemData) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range slices.Clone(state.PendingTargets) {
		cred, ok := state.Credentials[target]
		if !ok {
			// A pending target without a credential means the checkpoint
			// predates the filter; settle it the same way the filter would.
			mu.Lock()
			state.CompleteTarget(target, jobs.TargetResult{
				Target:  target,
				Success: false,
				Error:   common.ErrNoCredentials,
			})
			p.checkpoints.Save(ctx, state)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(target string, cred jobs.Credential) {
			defer wg.Done()
			res, settled := p.postTarget(ctx, log, req, target, cred, item)
			if !settled {
				return
			}
			mu.Lock()
			state.CompleteTarget(target, res)
			p.checkpoints.Save(ctx, state)
			mu.Unlock()
		}(target, cred)
	}

	wg.Wait()
}

// postTarget runs one target's retry-wrapped posting attempt under a hard
// wall-clock timeout and converts every way it can go wrong into a
// TargetResult. settled is false only when the attempt was cut short by the
// job context (shutdown): the posting outcome is unknown locally, so the
// target must not be recorded and re-delivery retries it.
func (p *Processor) postTarget(ctx context.Context, log *slog.Logger, req jobs.JobRequest, target string, cred jobs.Credential, item jobs.ItemData) (res jobs.TargetResult, settled bool) {
	log = log.With("target", target)
	defer func() {
		if r := recover(); r != nil {
			log.Error("poster panicked", "panic", r)
			res = jobs.TargetResult{Target: target, Success: false, Error: fmt.Sprintf("panic: %v", r)}
			settled = true
		}
	}()

	pst, ok := p.posters.Get(target)
	if !ok {
		return jobs.TargetResult{Target: target, Success: false, Error: fmt.Sprintf("no poster registered for %q", target)}, true
	}

	tctx, cancel := context.WithTimeout(ctx, p.postTimeout)
	defer cancel()

	var out poster.PostResult
	err := p.retry.Do(tctx, func(ctx context.Context) error {
		r, err := pst.Post(ctx, poster.PostRequest{
			JobID:      req.JobID,
			OwnerID:    req.OwnerID,
			Item:       item,
			Credential: cred,
		})
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(tctx.Err(), context.DeadlineExceeded) {
			log.Warn("posting aborted by shutdown, leaving target pending", "err", err)
			return jobs.TargetResult{}, false
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			log.Error("posting timed out", "timeout", p.postTimeout)
			return jobs.TargetResult{Target: target, Success: false, Error: common.ErrTimeout}, true
		}
		log.Error("posting failed", "err", err)
		return jobs.TargetResult{Target: target, Success: false, Error: err.Error()}, true
	}

	if !out.Success {
		detail := out.Detail
		if detail == "" {
			detail = "posting failed"
		}
		log.Warn("target reported failure", "detail", detail)
		return jobs.TargetResult{Target: target, Success: false, Error: detail, Metadata: out.Metadata}, true
	}

	log.Info("listing created", "url", out.URL)
	return jobs.TargetResult{Target: target, Success: true, URL: out.URL, Metadata: out.Metadata}, true
}
