package poster

import (
	"context"

	"github.com/crosslister/listing-worker/internal/jobs"
)

// PostRequest contains everything needed to publish one item on one target.
type PostRequest struct {
	JobID      string
	OwnerID    string
	Item       jobs.ItemData
	Credential jobs.Credential
}

// PostResult is the explicit outcome of a posting attempt. Expected
// failures (expired session, rate limit, challenge) are reported here with
// Success false; errors are reserved for faults reaching the service at all.
type PostResult struct {
	Success  bool
	URL      string
	Detail   string
	Metadata map[string]string
}

// Poster publishes one item on one target platform. Implementations may be
// slow (minutes) and non-deterministic; callers bound them with a context
// deadline.
type Poster interface {
	Name() string
	Post(ctx context.Context, req PostRequest) (PostResult, error)
}

// Registry holds initialized posters by target name, resolved once at
// startup.
type Registry struct {
	byName map[string]Poster
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Poster)}
}

func (r *Registry) Add(p Poster) {
	r.byName[p.Name()] = p
}

func (r *Registry) Get(name string) (Poster, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	return out
}
