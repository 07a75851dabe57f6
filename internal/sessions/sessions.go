package sessions

import (
	"context"

	"github.com/crosslister/listing-worker/internal/jobs"
)

// Provider loads authentication material for one owner and target platform.
// Absent and expired credentials both report ok=false without an error;
// errors are reserved for faults talking to the backing store.
type Provider interface {
	Load(ctx context.Context, ownerID, target string) (jobs.Credential, bool, error)
}
