package static

import (
	"context"
	"testing"
	"time"

	"github.com/crosslister/listing-worker/internal/config"
)

func TestLoad(t *testing.T) {
	p, err := New([]config.StaticCredential{
		{OwnerID: "user-1", Target: "poshmark", ProfileID: "prof-1", Cookies: "session=abc"},
		{OwnerID: "user-2", Target: "ebay", ProfileID: "prof-2"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cred, ok, err := p.Load(context.Background(), "user-1", "poshmark")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if cred.ProfileID != "prof-1" || cred.Cookies != "session=abc" {
		t.Fatalf("cred = %+v", cred)
	}

	// Owner and target must both match.
	if _, ok, _ := p.Load(context.Background(), "user-1", "ebay"); ok {
		t.Fatal("wrong target should miss")
	}
	if _, ok, _ := p.Load(context.Background(), "user-3", "poshmark"); ok {
		t.Fatal("unknown owner should miss")
	}
}

func TestLoad_ExpiredIsAbsent(t *testing.T) {
	p, err := New([]config.StaticCredential{
		{
			OwnerID:   "user-1",
			Target:    "mercari",
			ProfileID: "prof-1",
			ExpiresAt: time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok, _ := p.Load(context.Background(), "user-1", "mercari"); ok {
		t.Fatal("expired credential must be absent")
	}
}

func TestNew_RejectsBadExpiresAt(t *testing.T) {
	_, err := New([]config.StaticCredential{
		{OwnerID: "user-1", Target: "ebay", ExpiresAt: "yesterday"},
	})
	if err == nil {
		t.Fatal("malformed expiresAt must be rejected")
	}
}
