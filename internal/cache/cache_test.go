package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"dapurku/backend/internal/domain"
)

func TestNoopOutlierCacheAlwaysMisses(t *testing.T) {
	var c OutlierCache = NoopOutlierCache{}
	ctx := context.Background()

	if err := c.Set(ctx, 1, 1, Variant(15, 10, 50), []domain.VendorOutlier{{ItemID: 1}}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, 1, 1, Variant(15, 10, 50)); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestVariantSeparatesParameters(t *testing.T) {
	if Variant(15, 10, 50) == Variant(15, 5, 50) {
		t.Fatalf("window must be part of the variant")
	}
	if outlierKey(1, 2) != "outliers:1:2" {
		t.Fatalf("unexpected key %q", outlierKey(1, 2))
	}
}

func TestRedisOutlierCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("DAPURKU_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set DAPURKU_TEST_REDIS_ADDR to run redis cache test")
	}

	ctx := context.Background()
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisOutlierCache(client)
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	locationID, vendorID := time.Now().UnixNano(), int64(1)
	variant := Variant(15, 10, 50)
	want := []domain.VendorOutlier{{ItemID: 7, VendorID: vendorID, LocationID: locationID, PctChange: 30}}
	if err := c.Set(ctx, locationID, vendorID, variant, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, locationID, vendorID, variant)
	if err != nil || !ok || len(got) != 1 || got[0].ItemID != 7 {
		t.Fatalf("unexpected cache read: %v ok=%v err=%v", got, ok, err)
	}

	if err := c.Invalidate(ctx, locationID, vendorID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, locationID, vendorID, variant); ok {
		t.Fatalf("expected miss after invalidate")
	}
}
