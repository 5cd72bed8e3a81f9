package service

import (
	"context"
	"fmt"

	"dapurku/backend/internal/cache"
	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/pricing"
	"dapurku/backend/internal/store"
)

const defaultOutlierLimit = 50

func (s *Service) ListPriceObservations(ctx context.Context, filter domain.PriceObservationFilter) ([]domain.PriceObservation, error) {
	actor, err := s.authorize(ctx, pricingViewers)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = requiredLocation(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListPriceObservations(ctx, filter)
}

func (s *Service) ListPriceAlerts(ctx context.Context, filter domain.PriceAlertFilter) ([]domain.PriceAlert, error) {
	actor, err := s.authorize(ctx, pricingViewers)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = requiredLocation(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListPriceAlerts(ctx, filter)
}

// VendorOutliers ranks, for one location and vendor, each item's latest
// observed price against its rolling baseline. Results are cached per
// parameter set until the next finance confirmation for that vendor.
func (s *Service) VendorOutliers(ctx context.Context, q domain.OutlierQuery) ([]domain.VendorOutlier, error) {
	actor, err := s.authorize(ctx, pricingViewers)
	if err != nil {
		return nil, err
	}
	if q.LocationID, err = requiredLocation(actor, q.LocationID); err != nil {
		return nil, err
	}
	if q.VendorID <= 0 {
		return nil, fmt.Errorf("%w: vendor_id is required", store.ErrValidation)
	}

	threshold := s.policy.ThresholdPct
	if q.ThresholdPct != nil {
		if *q.ThresholdPct < 0 {
			return nil, fmt.Errorf("%w: threshold_pct must not be negative", store.ErrValidation)
		}
		threshold = *q.ThresholdPct
	}
	window := s.policy.BaselineWindow
	if q.Window != nil {
		if *q.Window < 1 || *q.Window > domain.MaxPageLimit {
			return nil, fmt.Errorf("%w: window must be between 1 and %d", store.ErrValidation, domain.MaxPageLimit)
		}
		window = *q.Window
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultOutlierLimit
	}
	if err := (domain.Page{Limit: limit}).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	variant := cache.Variant(threshold, window, limit)
	if cached, ok, err := s.outliers.Get(ctx, q.LocationID, q.VendorID, variant); err != nil {
		s.logger.WithError(err).Warn("outlier cache read failed")
	} else if ok {
		return cached, nil
	}

	latest, err := s.repo.LatestObservationsByItem(ctx, q.LocationID, q.VendorID)
	if err != nil {
		return nil, err
	}
	outliers := make([]domain.VendorOutlier, 0, len(latest))
	for _, obs := range latest {
		priors, err := s.repo.PriorUnitPrices(ctx, obs, window)
		if err != nil {
			return nil, err
		}
		outlier, err := pricing.Outlier(obs, priors, threshold)
		if err != nil {
			return nil, err
		}
		if outlier != nil {
			outliers = append(outliers, *outlier)
		}
	}
	outliers = pricing.RankOutliers(outliers, limit)

	if err := s.outliers.Set(ctx, q.LocationID, q.VendorID, variant, outliers, s.policy.OutlierCacheTTL); err != nil {
		s.logger.WithError(err).Warn("outlier cache write failed")
	}
	return outliers, nil
}
