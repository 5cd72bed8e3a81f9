// Package ledger builds inventory movement facts for the documents that
// post stock. Persisting them is the store's job.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

const (
	SourceGoodsReceipt = "GRN"
	SourcePettyCash    = "PETTY_CASH"
	SourcePortioning   = "PORTIONING_BATCH"

	// CoverageSlack absorbs float noise when checking stock for consumption.
	CoverageSlack = 1e-9
)

// ReceiptMovements turns a finance-confirmed receipt into RECEIPT rows.
// Lines with zero received quantity post nothing.
func ReceiptMovements(grn domain.GoodsReceipt, po domain.PurchaseOrder, actorID int64, at time.Time) []domain.InventoryMovement {
	grnID := grn.ID
	reqID := po.RequisitionID
	out := make([]domain.InventoryMovement, 0, len(grn.Lines))
	for _, line := range grn.Lines {
		if line.ReceivedQty == 0 {
			continue
		}
		m := domain.InventoryMovement{
			LocationID:         grn.LocationID,
			ItemID:             line.ItemID,
			MovementType:       domain.MovementReceipt,
			Quantity:           line.ReceivedQty,
			UnitCost:           line.UnitPrice,
			Status:             domain.MovementPosted,
			SourceDocumentType: SourceGoodsReceipt,
			SourceDocumentID:   grn.ID,
			GoodsReceiptID:     &grnID,
			CreatedBy:          actorID,
			CreatedAt:          at,
		}
		if reqID > 0 {
			m.RequisitionID = &reqID
		}
		out = append(out, m)
	}
	return out
}

// PettyCashMovements posts only item lines whose item counts toward COGS.
func PettyCashMovements(pc domain.PettyCash, items map[int64]domain.Item, actorID int64, at time.Time) []domain.InventoryMovement {
	out := make([]domain.InventoryMovement, 0, len(pc.Lines))
	for _, line := range pc.Lines {
		if line.ItemID == nil || line.Quantity <= 0 {
			continue
		}
		item, ok := items[*line.ItemID]
		if !ok || !item.IsCOGS {
			continue
		}
		out = append(out, domain.InventoryMovement{
			LocationID:         pc.LocationID,
			ItemID:             item.ID,
			MovementType:       domain.MovementReceipt,
			Quantity:           line.Quantity,
			UnitCost:           line.UnitPrice,
			Status:             domain.MovementPosted,
			SourceDocumentType: SourcePettyCash,
			SourceDocumentID:   pc.ID,
			CreatedBy:          actorID,
			CreatedAt:          at,
		})
	}
	return out
}

func PortioningMovements(batch domain.PortioningBatch, actorID int64, at time.Time) []domain.InventoryMovement {
	out := make([]domain.InventoryMovement, 0, len(batch.Inputs)+len(batch.Outputs)+len(batch.Losses))
	add := func(line domain.PortioningLine, kind string, sign float64) {
		out = append(out, domain.InventoryMovement{
			LocationID:         batch.LocationID,
			ItemID:             line.ItemID,
			MovementType:       kind,
			Quantity:           sign * line.Quantity,
			UnitCost:           0,
			Status:             domain.MovementPosted,
			SourceDocumentType: SourcePortioning,
			SourceDocumentID:   batch.ID,
			CreatedBy:          actorID,
			CreatedAt:          at,
		})
	}
	for _, line := range batch.Inputs {
		add(line, domain.MovementPortioning, -1)
	}
	for _, line := range batch.Outputs {
		add(line, domain.MovementPortioning, 1)
	}
	for _, line := range batch.Losses {
		add(line, domain.MovementAdjustment, -1)
	}
	return out
}

// RequiredInputs aggregates the input quantity per item.
func RequiredInputs(batch domain.PortioningBatch) map[int64]float64 {
	required := make(map[int64]float64, len(batch.Inputs))
	for _, line := range batch.Inputs {
		required[line.ItemID] += line.Quantity
	}
	return required
}

// CheckCoverage fails when on-hand stock cannot cover a required quantity.
func CheckCoverage(required map[int64]float64, onHand map[int64]float64) error {
	for itemID, qty := range required {
		if onHand[itemID]+CoverageSlack < qty {
			return fmt.Errorf("%w: insufficient on-hand for item %d: have %v, need %v", store.ErrConflict, itemID, onHand[itemID], qty)
		}
	}
	return nil
}

func ValidatePortioning(batch domain.PortioningBatch) error {
	if len(batch.Inputs) == 0 || len(batch.Outputs) == 0 {
		return fmt.Errorf("%w: portioning batch needs at least one input and one output", store.ErrValidation)
	}
	for _, group := range [][]domain.PortioningLine{batch.Inputs, batch.Outputs, batch.Losses} {
		for _, line := range group {
			if line.ItemID <= 0 || line.Quantity <= 0 {
				return fmt.Errorf("%w: portioning quantities must be positive", store.ErrValidation)
			}
		}
	}
	return nil
}

// SumQuantity adds posted movement quantities.
func SumQuantity(movements []domain.InventoryMovement) float64 {
	sum := decimal.Zero
	for _, m := range movements {
		if m.Status != domain.MovementPosted {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(m.Quantity))
	}
	total, _ := sum.Float64()
	return total
}

// PettyCashAmounts fills line amounts and returns the header amount. Item
// lines are priced as quantity x unit price; free-text lines keep their
// given amount.
func PettyCashAmounts(lines []domain.PettyCashLine) ([]domain.PettyCashLine, float64, error) {
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("%w: petty cash needs at least one line", store.ErrValidation)
	}
	out := make([]domain.PettyCashLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 0 || line.UnitPrice < 0 || line.Amount < 0 {
			return nil, 0, fmt.Errorf("%w: petty cash values must not be negative", store.ErrValidation)
		}
		if line.ItemID != nil {
			if line.Quantity <= 0 {
				return nil, 0, fmt.Errorf("%w: petty cash item lines need a positive quantity", store.ErrValidation)
			}
			line.Amount, _ = decimal.NewFromFloat(line.Quantity).Mul(decimal.NewFromFloat(line.UnitPrice)).Float64()
		}
		total = total.Add(decimal.NewFromFloat(line.Amount))
		out = append(out, line)
	}
	amount, _ := total.Float64()
	return out, amount, nil
}

// CheckPettyCashTotal verifies the header against its lines before posting.
func CheckPettyCashTotal(pc domain.PettyCash) error {
	if len(pc.Lines) == 0 {
		return fmt.Errorf("%w: petty cash has no lines", store.ErrConflict)
	}
	sum := decimal.Zero
	for _, line := range pc.Lines {
		sum = sum.Add(decimal.NewFromFloat(line.Amount))
	}
	if sum.Sub(decimal.NewFromFloat(pc.Amount)).Abs().GreaterThan(decimal.NewFromFloat(1e-6)) {
		return fmt.Errorf("%w: petty cash amount does not equal sum of lines", store.ErrConflict)
	}
	return nil
}
