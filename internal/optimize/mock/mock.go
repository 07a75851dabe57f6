package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
	"github.com/crosslister/listing-worker/internal/optimize"
)

var _ optimize.Optimizer = (*Optimizer)(nil)

// Optimizer is a deterministic optimizer for local runs and tests. It
// decorates the original copy per target after an optional simulated delay.
type Optimizer struct {
	delay time.Duration
}

func New(cfg config.MockDelaySettings) *Optimizer {
	return &Optimizer{delay: cfg.Delay}
}

func (o *Optimizer) Optimize(ctx context.Context, item jobs.ItemData, targets []string) (jobs.ItemData, error) {
	if o.delay > 0 {
		timer := time.NewTimer(o.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return jobs.ItemData{}, ctx.Err()
		case <-timer.C:
		}
	}
	out := item
	out.Variants = make(map[string]jobs.CopyVariant, len(targets))
	for _, target := range targets {
		out.Variants[target] = jobs.CopyVariant{
			Title:       fmt.Sprintf("%s (%s)", item.Title, target),
			Description: item.Description,
		}
	}
	return out, nil
}
