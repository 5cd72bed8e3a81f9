package domain

import "fmt"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
)

type Page struct {
	Limit  int
	Offset int
}

func (p Page) Validate() error {
	if p.Limit < 1 || p.Limit > MaxPageLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxPageLimit)
	}
	if p.Offset < 0 {
		return fmt.Errorf("offset must be >= 0")
	}
	return nil
}

// DocumentFilter scopes document listings. LocationID 0 means every location.
type DocumentFilter struct {
	LocationID int64
	Status     string
	Page
}

type MovementFilter struct {
	SourceDocumentType string
	SourceDocumentID   int64
	Page
}

type PriceObservationFilter struct {
	LocationID int64
	ItemID     *int64
	VendorID   *int64
	Page
}

type PriceAlertFilter struct {
	LocationID int64
	Status     string
	ItemID     *int64
	VendorID   *int64
	Page
}

type AuditFilter struct {
	LocationID int64
	Page
}

type OutlierQuery struct {
	LocationID   int64
	VendorID     int64
	ThresholdPct *float64
	Window       *int
	Limit        int
}

// PricePolicy drives anomaly detection at finance-confirm time.
type PricePolicy struct {
	ThresholdPct float64
	Window       int
}
