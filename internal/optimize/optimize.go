package optimize

import (
	"context"

	"github.com/crosslister/listing-worker/internal/jobs"
)

// Optimizer defines the capability to rewrite listing copy per target
// platform. It has no side effects; callers fall back to the original item
// when it fails, so implementations never need to be correct, only helpful.
type Optimizer interface {
	// Optimize returns a copy of item with per-target copy variants filled
	// in for the given targets. The input item is not mutated.
	Optimize(ctx context.Context, item jobs.ItemData, targets []string) (jobs.ItemData, error)
}
