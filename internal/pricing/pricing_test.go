package pricing

import (
	"errors"
	"math"
	"testing"
	"time"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

func vendorID(v int64) *int64 { return &v }

func TestEvaluateHighSeverity(t *testing.T) {
	obs := domain.PriceObservation{ID: 9, LocationID: 1, VendorID: vendorID(1), ItemID: 3, UnitPrice: 130}
	alert, err := Evaluate(obs, []float64{100}, DefaultPolicy())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if alert == nil {
		t.Fatalf("expected alert")
	}
	if alert.Severity != SeverityHigh || math.Abs(alert.PctChange-30) > 1e-9 || alert.BaselineUnitPrice != 100 {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if alert.ObservationID != 9 || alert.Status != AlertStatusOpen || alert.ThresholdPct != 15 {
		t.Fatalf("unexpected alert identity %+v", alert)
	}
	want := "Unit price variance 30.00% vs rolling baseline (n<=10) after GRN finance-confirm."
	if alert.Reason != want {
		t.Fatalf("unexpected reason %q", alert.Reason)
	}
}

func TestEvaluateBelowThresholdAndNoHistory(t *testing.T) {
	obs := domain.PriceObservation{UnitPrice: 110}
	alert, err := Evaluate(obs, []float64{100}, DefaultPolicy())
	if err != nil || alert != nil {
		t.Fatalf("expected no alert below threshold, got %+v %v", alert, err)
	}
	alert, err = Evaluate(obs, nil, DefaultPolicy())
	if err != nil || alert != nil {
		t.Fatalf("expected no alert without history, got %+v %v", alert, err)
	}
}

func TestEvaluateZeroBaseline(t *testing.T) {
	_, err := Evaluate(domain.PriceObservation{UnitPrice: 5}, []float64{0, 0}, DefaultPolicy())
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestSeverityBands(t *testing.T) {
	cases := map[float64]string{-60: SeverityCritical, 50: SeverityCritical, 25: SeverityHigh, -30: SeverityHigh, 15: SeverityMedium}
	for pct, want := range cases {
		if got := Severity(pct); got != want {
			t.Fatalf("pct %v: expected %s, got %s", pct, want, got)
		}
	}
}

func TestPriorWindowScopeAndOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := domain.PriceObservation{ID: 10, LocationID: 1, VendorID: vendorID(2), ItemID: 5, CreatedAt: base.Add(10 * time.Hour)}
	candidates := []domain.PriceObservation{
		obs,
		{ID: 1, LocationID: 1, VendorID: vendorID(2), ItemID: 5, UnitPrice: 10, CreatedAt: base},
		{ID: 2, LocationID: 1, VendorID: vendorID(2), ItemID: 5, UnitPrice: 20, CreatedAt: base.Add(time.Hour)},
		{ID: 3, LocationID: 1, VendorID: vendorID(2), ItemID: 5, UnitPrice: 30, CreatedAt: base.Add(time.Hour)},
		{ID: 4, LocationID: 1, VendorID: nil, ItemID: 5, UnitPrice: 99, CreatedAt: base},
		{ID: 5, LocationID: 2, VendorID: vendorID(2), ItemID: 5, UnitPrice: 99, CreatedAt: base},
	}
	got := PriorWindow(obs, candidates, 2)
	if len(got) != 2 || got[0] != 30 || got[1] != 20 {
		t.Fatalf("unexpected window %v", got)
	}
}

func TestRankOutliers(t *testing.T) {
	ranked := RankOutliers([]domain.VendorOutlier{
		{ItemID: 1, PctChange: 20},
		{ItemID: 2, PctChange: -45},
		{ItemID: 3, PctChange: 30},
	}, 2)
	if len(ranked) != 2 || ranked[0].ItemID != 2 || ranked[1].ItemID != 3 {
		t.Fatalf("unexpected ranking %+v", ranked)
	}
}
