// Package pricing detects unit-price anomalies against a rolling baseline
// of earlier observations for the same location, vendor and item.
package pricing

import (
	"fmt"
	"math"
	"slices"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

const (
	DefaultThresholdPct = 15.0
	DefaultWindow       = 10

	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"

	AlertStatusOpen = "OPEN"
)

func DefaultPolicy() domain.PricePolicy {
	return domain.PricePolicy{ThresholdPct: DefaultThresholdPct, Window: DefaultWindow}
}

// Normalize fills zero values with the defaults.
func Normalize(policy domain.PricePolicy) domain.PricePolicy {
	if policy.ThresholdPct <= 0 {
		policy.ThresholdPct = DefaultThresholdPct
	}
	if policy.Window <= 0 {
		policy.Window = DefaultWindow
	}
	return policy
}

// Baseline is the mean of the prior prices. ok is false when there are none.
func Baseline(priors []float64) (float64, bool) {
	if len(priors) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, p := range priors {
		sum += p
	}
	return sum / float64(len(priors)), true
}

func PctChange(observed float64, baseline float64) (float64, error) {
	if baseline <= 0 {
		return 0, fmt.Errorf("%w: baseline unit price must be positive, got %v", store.ErrInvalidState, baseline)
	}
	return (observed - baseline) / baseline * 100, nil
}

func Severity(pctChange float64) string {
	abs := math.Abs(pctChange)
	switch {
	case abs >= 50:
		return SeverityCritical
	case abs >= 25:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func Reason(pctChange float64, window int) string {
	return fmt.Sprintf("Unit price variance %.2f%% vs rolling baseline (n<=%d) after GRN finance-confirm.", pctChange, window)
}

// Evaluate decides whether obs deserves an alert. priors must already be
// the window of earlier prices for the same scope, newest first, excluding
// obs itself. A nil alert with a nil error means no anomaly.
func Evaluate(obs domain.PriceObservation, priors []float64, policy domain.PricePolicy) (*domain.PriceAlert, error) {
	policy = Normalize(policy)
	baseline, ok := Baseline(priors)
	if !ok {
		return nil, nil
	}
	pct, err := PctChange(obs.UnitPrice, baseline)
	if err != nil {
		return nil, err
	}
	if math.Abs(pct) < policy.ThresholdPct {
		return nil, nil
	}
	return &domain.PriceAlert{
		LocationID:        obs.LocationID,
		VendorID:          obs.VendorID,
		ItemID:            obs.ItemID,
		ObservationID:     obs.ID,
		Status:            AlertStatusOpen,
		Severity:          Severity(pct),
		ThresholdPct:      policy.ThresholdPct,
		BaselineUnitPrice: baseline,
		ObservedUnitPrice: obs.UnitPrice,
		PctChange:         pct,
		Reason:            Reason(pct, policy.Window),
		CreatedBy:         obs.CreatedBy,
		CreatedAt:         obs.CreatedAt,
	}, nil
}

// Outlier applies the same baseline logic to a stored observation for the
// read-only outlier query.
func Outlier(obs domain.PriceObservation, priors []float64, thresholdPct float64) (*domain.VendorOutlier, error) {
	baseline, ok := Baseline(priors)
	if !ok {
		return nil, nil
	}
	pct, err := PctChange(obs.UnitPrice, baseline)
	if err != nil {
		return nil, err
	}
	if math.Abs(pct) < thresholdPct {
		return nil, nil
	}
	vendorID := int64(0)
	if obs.VendorID != nil {
		vendorID = *obs.VendorID
	}
	return &domain.VendorOutlier{
		ItemID:            obs.ItemID,
		VendorID:          vendorID,
		LocationID:        obs.LocationID,
		BaselineUnitPrice: baseline,
		ObservedUnitPrice: obs.UnitPrice,
		PctChange:         pct,
		ThresholdPct:      thresholdPct,
		ObservationID:     obs.ID,
	}, nil
}

// RankOutliers sorts by absolute change, largest first, and truncates to
// limit when limit is positive.
func RankOutliers(outliers []domain.VendorOutlier, limit int) []domain.VendorOutlier {
	slices.SortStableFunc(outliers, func(a, b domain.VendorOutlier) int {
		da, db := math.Abs(a.PctChange), math.Abs(b.PctChange)
		switch {
		case da > db:
			return -1
		case da < db:
			return 1
		}
		if a.ItemID < b.ItemID {
			return -1
		}
		if a.ItemID > b.ItemID {
			return 1
		}
		return 0
	})
	if limit > 0 && len(outliers) > limit {
		outliers = outliers[:limit]
	}
	return outliers
}

// PriorWindow picks the newest prices from observations sharing obs's
// scope. candidates may be in any order; obs itself is skipped.
func PriorWindow(obs domain.PriceObservation, candidates []domain.PriceObservation, window int) []float64 {
	matching := make([]domain.PriceObservation, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == obs.ID || c.LocationID != obs.LocationID || c.ItemID != obs.ItemID {
			continue
		}
		if !sameVendor(c.VendorID, obs.VendorID) {
			continue
		}
		matching = append(matching, c)
	}
	slices.SortFunc(matching, func(a, b domain.PriceObservation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if window > 0 && len(matching) > window {
		matching = matching[:window]
	}
	prices := make([]float64, 0, len(matching))
	for _, m := range matching {
		prices = append(prices, m.UnitPrice)
	}
	return prices
}

func sameVendor(a *int64, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
