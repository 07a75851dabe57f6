package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/poster"
)

var _ poster.Poster = (*Poster)(nil)

// Poster is a deterministic poster for local runs and tests. It always
// succeeds with a synthetic URL after an optional simulated delay.
type Poster struct {
	name  string
	delay time.Duration
}

func New(name string, cfg config.MockDelaySettings) *Poster {
	return &Poster{name: name, delay: cfg.Delay}
}

func (p *Poster) Name() string { return p.name }

func (p *Poster) Post(ctx context.Context, req poster.PostRequest) (poster.PostResult, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return poster.PostResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	return poster.PostResult{
		Success: true,
		URL:     fmt.Sprintf("https://%s.example.com/listings/%s", p.name, req.JobID),
	}, nil
}
