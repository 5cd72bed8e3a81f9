package cache

import (
	"context"
	"fmt"
	"time"

	"dapurku/backend/internal/domain"
)

// OutlierCache holds ranked vendor-outlier results per location and vendor.
// Entries are dropped whenever a finance confirmation records new prices.
type OutlierCache interface {
	Get(ctx context.Context, locationID int64, vendorID int64, variant string) ([]domain.VendorOutlier, bool, error)
	Set(ctx context.Context, locationID int64, vendorID int64, variant string, value []domain.VendorOutlier, ttl time.Duration) error
	Invalidate(ctx context.Context, locationID int64, vendorID int64) error
}

type NoopOutlierCache struct{}

func (NoopOutlierCache) Get(_ context.Context, _ int64, _ int64, _ string) ([]domain.VendorOutlier, bool, error) {
	return nil, false, nil
}

func (NoopOutlierCache) Set(_ context.Context, _ int64, _ int64, _ string, _ []domain.VendorOutlier, _ time.Duration) error {
	return nil
}

func (NoopOutlierCache) Invalidate(_ context.Context, _ int64, _ int64) error {
	return nil
}

// Variant names one threshold/window/limit combination inside a scope.
func Variant(thresholdPct float64, window int, limit int) string {
	return fmt.Sprintf("t=%g:w=%d:l=%d", thresholdPct, window, limit)
}

func outlierKey(locationID int64, vendorID int64) string {
	return fmt.Sprintf("outliers:%d:%d", locationID, vendorID)
}
