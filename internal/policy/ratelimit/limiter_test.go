package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/scqc/internal/metrics"
)

func init() {
	metrics.Init()
}

func TestLimiterWaitSpacesRequests(t *testing.T) {
	// 10 requests per second means one token every 100ms after the burst.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()
	url := "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"

	start := time.Now()
	if err := l.Wait(ctx, url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	start = time.Now()
	if err := l.Wait(ctx, url); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.example/1"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.example/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("host b blocked by host a")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 50; i++ {
		if err := l.Wait(context.Background(), "https://eutils.test"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "https://slow.example"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.example")
	if err == nil {
		t.Fatal("expected wait to fail on a short deadline")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected cancel error: %v", err)
	}
}
