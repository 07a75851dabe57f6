package static

import (
	"context"
	"fmt"
	"time"

	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
	"github.com/crosslister/listing-worker/internal/sessions"
)

var _ sessions.Provider = (*Provider)(nil)

// Provider serves config-supplied credentials. Intended for local runs and
// tests where no backend is available.
type Provider struct {
	creds map[string]jobs.Credential // keyed by ownerID + "/" + target
}

func New(entries []config.StaticCredential) (*Provider, error) {
	creds := make(map[string]jobs.Credential, len(entries))
	for _, e := range entries {
		cred := jobs.Credential{
			Target:    e.Target,
			ProfileID: e.ProfileID,
			Cookies:   e.Cookies,
		}
		if e.ExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, e.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("static credential %s/%s: parse expiresAt: %w", e.OwnerID, e.Target, err)
			}
			cred.ExpiresAt = &t
		}
		creds[key(e.OwnerID, e.Target)] = cred
	}
	return &Provider{creds: creds}, nil
}

func key(ownerID, target string) string {
	return ownerID + "/" + target
}

func (p *Provider) Load(_ context.Context, ownerID, target string) (jobs.Credential, bool, error) {
	cred, ok := p.creds[key(ownerID, target)]
	if !ok || cred.Expired(time.Now().UTC()) {
		return jobs.Credential{}, false, nil
	}
	return cred, true, nil
}
