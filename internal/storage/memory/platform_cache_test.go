package memory

import (
	"context"
	"testing"
	"time"
)

func TestPlatformCache_GetSet(t *testing.T) {
	cache := NewPlatformCache()
	ctx := context.Background()

	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	if _, ok, _ := cache.Get(ctx, "ethereum"); ok {
		t.Fatal("expected miss on empty cache")
	}

	m := map[string]string{"0xa0b8": "usd-coin"}
	if err := cache.Set(ctx, "ethereum", m, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	m["0xa0b8"] = "mutated"

	got, ok, err := cache.Get(ctx, "ethereum")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got["0xa0b8"] != "usd-coin" {
		t.Errorf("cached map aliased caller map: %v", got)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "ethereum"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestPlatformCache_NoExpiry(t *testing.T) {
	cache := NewPlatformCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "polygon-pos", map[string]string{}, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "polygon-pos"); !ok {
		t.Error("expected entry without ttl to be present")
	}
}
