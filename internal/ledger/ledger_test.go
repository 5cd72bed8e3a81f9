package ledger

import (
	"errors"
	"testing"
	"time"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

func TestReceiptMovementsSkipZeroLines(t *testing.T) {
	now := time.Now().UTC()
	grn := domain.GoodsReceipt{ID: 4, LocationID: 1, Lines: []domain.GoodsReceiptLine{
		{ItemID: 1, ReceivedQty: 10, UnitPrice: 5},
		{ItemID: 2, ReceivedQty: 0, UnitPrice: 8},
	}}
	po := domain.PurchaseOrder{ID: 3, RequisitionID: 2}

	movements := ReceiptMovements(grn, po, 9, now)
	if len(movements) != 1 {
		t.Fatalf("expected one movement, got %d", len(movements))
	}
	m := movements[0]
	if m.Quantity != 10 || m.UnitCost != 5 || m.MovementType != domain.MovementReceipt {
		t.Fatalf("unexpected movement %+v", m)
	}
	if m.SourceDocumentType != SourceGoodsReceipt || m.SourceDocumentID != 4 {
		t.Fatalf("unexpected source key %s/%d", m.SourceDocumentType, m.SourceDocumentID)
	}
	if m.GoodsReceiptID == nil || *m.GoodsReceiptID != 4 || m.RequisitionID == nil || *m.RequisitionID != 2 {
		t.Fatalf("expected backlinks on movement %+v", m)
	}
	if SumQuantity(movements) != 10 {
		t.Fatalf("expected on-hand 10, got %v", SumQuantity(movements))
	}
}

func TestPettyCashMovementsOnlyCOGS(t *testing.T) {
	meat, soap := int64(1), int64(8)
	pc := domain.PettyCash{ID: 2, LocationID: 1, Lines: []domain.PettyCashLine{
		{ItemID: &meat, Quantity: 2, UnitPrice: 50000},
		{ItemID: &soap, Quantity: 1, UnitPrice: 9000},
		{Description: "parking", Amount: 5000},
	}}
	items := map[int64]domain.Item{
		1: {ID: 1, IsCOGS: true},
		8: {ID: 8, IsCOGS: false},
	}
	movements := PettyCashMovements(pc, items, 3, time.Now())
	if len(movements) != 1 || movements[0].ItemID != 1 || movements[0].SourceDocumentType != SourcePettyCash {
		t.Fatalf("unexpected petty cash movements %+v", movements)
	}
}

func TestPettyCashAmounts(t *testing.T) {
	rice := int64(3)
	lines, amount, err := PettyCashAmounts([]domain.PettyCashLine{
		{ItemID: &rice, Quantity: 2.5, UnitPrice: 14000, Amount: 1},
		{Description: "ice", Amount: 7500},
	})
	if err != nil {
		t.Fatalf("amounts failed: %v", err)
	}
	if lines[0].Amount != 35000 || amount != 42500 {
		t.Fatalf("unexpected amounts %v %v", lines[0].Amount, amount)
	}
	if _, _, err := PettyCashAmounts([]domain.PettyCashLine{{ItemID: &rice}}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for zero qty item line, got %v", err)
	}

	pc := domain.PettyCash{Amount: 42000, Lines: lines}
	if err := CheckPettyCashTotal(pc); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for header mismatch, got %v", err)
	}
}

func TestPortioningMovementsAndCoverage(t *testing.T) {
	batch := domain.PortioningBatch{
		ID:         5,
		LocationID: 1,
		Inputs:     []domain.PortioningLine{{ItemID: 1, Quantity: 4}, {ItemID: 1, Quantity: 1}},
		Outputs:    []domain.PortioningLine{{ItemID: 5, Quantity: 18}},
		Losses:     []domain.PortioningLine{{ItemID: 1, Quantity: 0.5}},
	}
	if err := ValidatePortioning(batch); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	movements := PortioningMovements(batch, 2, time.Now())
	if len(movements) != 4 {
		t.Fatalf("expected 4 movements, got %d", len(movements))
	}
	if movements[0].Quantity != -4 || movements[2].Quantity != 18 || movements[3].MovementType != domain.MovementAdjustment {
		t.Fatalf("unexpected portioning movements %+v", movements)
	}

	required := RequiredInputs(batch)
	if err := CheckCoverage(required, map[int64]float64{1: 4.9}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for short stock, got %v", err)
	}
	if err := CheckCoverage(required, map[int64]float64{1: 5}); err != nil {
		t.Fatalf("expected coverage ok, got %v", err)
	}

	if err := ValidatePortioning(domain.PortioningBatch{Inputs: batch.Inputs}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without outputs, got %v", err)
	}
}
