package domain

// Snapshots are the before/after values attached to audit events. They are
// plain values built from an entity and never mutated afterwards.

type RequisitionSnapshot struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	LocationID   int64  `json:"location_id"`
	DepartmentID int64  `json:"department_id"`
	LineCount    int    `json:"line_count"`
}

type PurchaseOrderSnapshot struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	LocationID    int64  `json:"location_id"`
	VendorID      int64  `json:"vendor_id"`
	RequisitionID int64  `json:"requisition_id"`
}

type GoodsReceiptSnapshot struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	LocationID      int64  `json:"location_id"`
	PurchaseOrderID int64  `json:"purchase_order_id"`
	StoreSignedBy   *int64 `json:"store_signed_by"`
	FinanceSignedBy *int64 `json:"finance_signed_by"`
}

type InvoiceSnapshot struct {
	ID                  int64  `json:"id"`
	Status              string `json:"status"`
	LocationID          int64  `json:"location_id"`
	GoodsReceiptID      int64  `json:"goods_receipt_id"`
	VendorInvoiceNumber string `json:"vendor_invoice_number"`
}

type PaymentSnapshot struct {
	ID         int64   `json:"id"`
	Status     string  `json:"status"`
	LocationID int64   `json:"location_id"`
	InvoiceID  int64   `json:"invoice_id"`
	Amount     float64 `json:"amount"`
}

type PriceAlertSnapshot struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status"`
	Severity      string  `json:"severity"`
	ItemID        int64   `json:"item_id"`
	VendorID      *int64  `json:"vendor_id"`
	ObservationID int64   `json:"observation_id"`
	PctChange     float64 `json:"pct_change"`
}

type PettyCashSnapshot struct {
	ID         int64   `json:"id"`
	Status     string  `json:"status"`
	LocationID int64   `json:"location_id"`
	Amount     float64 `json:"amount"`
}

type PortioningSnapshot struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	LocationID int64  `json:"location_id"`
}

func SnapshotRequisition(r Requisition) RequisitionSnapshot {
	return RequisitionSnapshot{
		ID:           r.ID,
		Status:       r.Status,
		LocationID:   r.LocationID,
		DepartmentID: r.DepartmentID,
		LineCount:    len(r.Lines),
	}
}

func SnapshotPurchaseOrder(po PurchaseOrder) PurchaseOrderSnapshot {
	return PurchaseOrderSnapshot{
		ID:            po.ID,
		Status:        po.Status,
		LocationID:    po.LocationID,
		VendorID:      po.VendorID,
		RequisitionID: po.RequisitionID,
	}
}

func SnapshotGoodsReceipt(g GoodsReceipt) GoodsReceiptSnapshot {
	return GoodsReceiptSnapshot{
		ID:              g.ID,
		Status:          g.Status,
		LocationID:      g.LocationID,
		PurchaseOrderID: g.PurchaseOrderID,
		StoreSignedBy:   copyID(g.StoreSignedBy),
		FinanceSignedBy: copyID(g.FinanceSignedBy),
	}
}

func SnapshotInvoice(inv Invoice) InvoiceSnapshot {
	return InvoiceSnapshot{
		ID:                  inv.ID,
		Status:              inv.Status,
		LocationID:          inv.LocationID,
		GoodsReceiptID:      inv.GoodsReceiptID,
		VendorInvoiceNumber: inv.VendorInvoiceNumber,
	}
}

func SnapshotPayment(p Payment) PaymentSnapshot {
	return PaymentSnapshot{
		ID:         p.ID,
		Status:     p.Status,
		LocationID: p.LocationID,
		InvoiceID:  p.InvoiceID,
		Amount:     p.Amount,
	}
}

func SnapshotPriceAlert(a PriceAlert) PriceAlertSnapshot {
	return PriceAlertSnapshot{
		ID:            a.ID,
		Status:        a.Status,
		Severity:      a.Severity,
		ItemID:        a.ItemID,
		VendorID:      copyID(a.VendorID),
		ObservationID: a.ObservationID,
		PctChange:     a.PctChange,
	}
}

func SnapshotPettyCash(pc PettyCash) PettyCashSnapshot {
	return PettyCashSnapshot{ID: pc.ID, Status: pc.Status, LocationID: pc.LocationID, Amount: pc.Amount}
}

func SnapshotPortioning(b PortioningBatch) PortioningSnapshot {
	return PortioningSnapshot{ID: b.ID, Status: b.Status, LocationID: b.LocationID}
}

func copyID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
