package mock

import (
	"context"
	"testing"
	"time"

	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/poster"
)

func TestPost(t *testing.T) {
	p := New("ebay", config.MockDelaySettings{})
	res, err := p.Post(context.Background(), poster.PostRequest{JobID: "job-1"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if !res.Success || res.URL != "https://ebay.example.com/listings/job-1" {
		t.Fatalf("result = %+v", res)
	}
}

func TestPost_DelayHonorsContext(t *testing.T) {
	p := New("ebay", config.MockDelaySettings{Delay: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Post(ctx, poster.PostRequest{JobID: "job-1"}); err == nil {
		t.Fatal("expected context error")
	}
}
