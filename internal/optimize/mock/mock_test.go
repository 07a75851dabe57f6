package mock

import (
	"context"
	"testing"
	"time"

	"github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
)

func TestOptimize(t *testing.T) {
	o := New(config.MockDelaySettings{})
	item := jobs.ItemData{Title: "Denim Jacket", Description: "Lightly worn"}
	out, err := o.Optimize(context.Background(), item, []string{"poshmark", "ebay"})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if out.Variants["poshmark"].Title != "Denim Jacket (poshmark)" {
		t.Fatalf("variants = %+v", out.Variants)
	}
	if out.Variants["ebay"].Description != "Lightly worn" {
		t.Fatalf("variants = %+v", out.Variants)
	}
	if item.Variants != nil {
		t.Fatal("input item was mutated")
	}
}

func TestOptimize_DelayHonorsContext(t *testing.T) {
	o := New(config.MockDelaySettings{Delay: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := o.Optimize(ctx, jobs.ItemData{Title: "x"}, []string{"ebay"}); err == nil {
		t.Fatal("expected context error")
	}
}
