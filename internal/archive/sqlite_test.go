package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/crosslister/listing-worker/internal/jobs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleOutcome() (jobs.JobRequest, jobs.JobResult) {
	req := jobs.JobRequest{
		JobID:   "job-42",
		OwnerID: "user-7",
		Item:    jobs.ItemData{Title: "Leather Boots", Price: 80},
		Targets: []string{"poshmark", "ebay"},
	}
	res := jobs.JobResult{
		JobID:   "job-42",
		Success: true,
		Results: map[string]jobs.TargetResult{
			"poshmark": {Target: "poshmark", Success: true, URL: "https://poshmark.example.com/1"},
			"ebay":     {Target: "ebay", Success: false, Error: "timeout"},
		},
		SuccessfulPosts: 1,
		TotalTargets:    2,
		CompletedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return req, res
}

func TestStore_RecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	req, res := sampleOutcome()

	if err := store.Record(ctx, req, res); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "job-42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for recorded job")
	}
	if got.JobID != "job-42" || got.OwnerID != "user-7" || got.Title != "Leather Boots" {
		t.Fatalf("row = %+v", got)
	}
	if !got.Success || got.SuccessfulPosts != 1 || got.TotalTargets != 2 {
		t.Fatalf("counts = %+v", got)
	}
	if got.Results["poshmark"].URL != "https://poshmark.example.com/1" {
		t.Fatalf("results = %+v", got.Results)
	}
	if got.Results["ebay"].Error != "timeout" {
		t.Fatalf("results = %+v", got.Results)
	}
	if !got.CompletedAt.Equal(res.CompletedAt) {
		t.Fatalf("completedAt = %v, want %v", got.CompletedAt, res.CompletedAt)
	}
	if got.ArchivedAt.IsZero() {
		t.Fatal("archivedAt not stamped")
	}
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "never-recorded")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("got = %+v, want nil", got)
	}
}

func TestStore_RedeliveryOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	req, res := sampleOutcome()

	if err := store.Record(ctx, req, res); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// A retry picked up the failed target.
	res.Results["ebay"] = jobs.TargetResult{Target: "ebay", Success: true, URL: "https://ebay.example.com/2"}
	res.SuccessfulPosts = 2
	if err := store.Record(ctx, req, res); err != nil {
		t.Fatalf("Record (redelivery): %v", err)
	}

	got, err := store.Get(ctx, "job-42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SuccessfulPosts != 2 || !got.Results["ebay"].Success {
		t.Fatalf("row = %+v", got)
	}
}
