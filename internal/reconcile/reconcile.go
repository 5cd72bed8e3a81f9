// Package reconcile compares purchase order, goods receipt and invoice lines.
package reconcile

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"dapurku/backend/internal/domain"
)

const Tolerance = 1e-6

const (
	MissingLine                = "MISSING_LINE"
	QtyMismatch                = "QTY_MISMATCH"
	PriceMismatchInvoiceVsLPO  = "UNIT_PRICE_MISMATCH_INVOICE_VS_LPO"
	PriceMismatchGRNVsLPO      = "UNIT_PRICE_MISMATCH_GRN_VS_LPO"
	InvoiceLineTotalMismatch   = "INVOICE_LINE_TOTAL_MISMATCH"
	GrandTotalMismatchLPOVsGRN = "GRAND_TOTAL_MISMATCH_LPO_VS_GRN"
	GrandTotalMismatchGRNVsInv = "GRAND_TOTAL_MISMATCH_GRN_VS_INVOICE"
)

func OrderLines(po domain.PurchaseOrder) []domain.MatchLine {
	out := make([]domain.MatchLine, 0, len(po.Lines))
	for _, line := range po.Lines {
		out = append(out, domain.MatchLine{
			ItemID:    line.ItemID,
			Quantity:  line.OrderedQty,
			UnitPrice: line.UnitPrice,
			LineTotal: LineTotal(line.OrderedQty, line.UnitPrice),
		})
	}
	return out
}

func ReceiptLines(grn domain.GoodsReceipt) []domain.MatchLine {
	out := make([]domain.MatchLine, 0, len(grn.Lines))
	for _, line := range grn.Lines {
		out = append(out, domain.MatchLine{
			ItemID:    line.ItemID,
			Quantity:  line.ReceivedQty,
			UnitPrice: line.UnitPrice,
			LineTotal: LineTotal(line.ReceivedQty, line.UnitPrice),
		})
	}
	return out
}

// InvoiceLines keeps the vendor-stated line total rather than recomputing it.
func InvoiceLines(inv domain.Invoice) []domain.MatchLine {
	out := make([]domain.MatchLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		out = append(out, domain.MatchLine{
			ItemID:    line.ItemID,
			Quantity:  line.BilledQty,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return out
}

func LineTotal(qty float64, unitPrice float64) float64 {
	total, _ := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(unitPrice)).Float64()
	return total
}

func Total(lines []domain.MatchLine) float64 {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(decimal.NewFromFloat(line.LineTotal))
	}
	total, _ := sum.Float64()
	return total
}

func InvoiceTotal(inv domain.Invoice) float64 {
	return Total(InvoiceLines(inv))
}

func Document(id int64, lines []domain.MatchLine) domain.MatchDocument {
	return domain.MatchDocument{ID: id, Total: Total(lines), Lines: lines}
}

// ThreeWay runs the full reconciliation. It has no side effects and is the
// only source for both invoice evaluation and the payment precondition.
func ThreeWay(po domain.PurchaseOrder, grn domain.GoodsReceipt, inv domain.Invoice) domain.MatchResult {
	order := Document(po.ID, OrderLines(po))
	receipt := Document(grn.ID, ReceiptLines(grn))
	invoice := Document(inv.ID, InvoiceLines(inv))

	orderByItem := index(order.Lines)
	receiptByItem := index(receipt.Lines)
	invoiceByItem := index(invoice.Lines)

	itemIDs := make([]int64, 0, len(orderByItem)+len(receiptByItem)+len(invoiceByItem))
	for _, m := range []map[int64]domain.MatchLine{orderByItem, receiptByItem, invoiceByItem} {
		for itemID := range m {
			if !slices.Contains(itemIDs, itemID) {
				itemIDs = append(itemIDs, itemID)
			}
		}
	}
	slices.Sort(itemIDs)

	discrepancies := make([]domain.Discrepancy, 0)
	for _, itemID := range itemIDs {
		o, hasOrder := orderByItem[itemID]
		r, hasReceipt := receiptByItem[itemID]
		i, hasInvoice := invoiceByItem[itemID]
		id := itemID

		if !hasOrder || !hasReceipt || !hasInvoice {
			d := domain.Discrepancy{Type: MissingLine, ItemID: &id}
			if hasOrder {
				d.Order = &o
			}
			if hasReceipt {
				d.Receipt = &r
			}
			if hasInvoice {
				d.Invoice = &i
			}
			discrepancies = append(discrepancies, d)
			continue
		}

		if !equal(i.Quantity, r.Quantity) {
			discrepancies = append(discrepancies, lineDiscrepancy(QtyMismatch, id, o, r, i, r.Quantity, i.Quantity))
		}
		if !equal(i.UnitPrice, o.UnitPrice) {
			discrepancies = append(discrepancies, lineDiscrepancy(PriceMismatchInvoiceVsLPO, id, o, r, i, o.UnitPrice, i.UnitPrice))
		}
		if !equal(r.UnitPrice, o.UnitPrice) {
			discrepancies = append(discrepancies, lineDiscrepancy(PriceMismatchGRNVsLPO, id, o, r, i, o.UnitPrice, r.UnitPrice))
		}
		if expected := LineTotal(i.Quantity, i.UnitPrice); !equal(i.LineTotal, expected) {
			discrepancies = append(discrepancies, lineDiscrepancy(InvoiceLineTotalMismatch, id, o, r, i, expected, i.LineTotal))
		}
	}

	if !equal(order.Total, receipt.Total) {
		discrepancies = append(discrepancies, domain.Discrepancy{
			Type:     GrandTotalMismatchLPOVsGRN,
			Expected: order.Total,
			Actual:   receipt.Total,
		})
	}
	if !equal(receipt.Total, invoice.Total) {
		discrepancies = append(discrepancies, domain.Discrepancy{
			Type:     GrandTotalMismatchGRNVsInv,
			Expected: receipt.Total,
			Actual:   invoice.Total,
		})
	}

	return domain.MatchResult{
		Order:         order,
		Receipt:       receipt,
		Invoice:       invoice,
		Discrepancies: discrepancies,
		IsMatch:       len(discrepancies) == 0,
	}
}

// ReceiptPayload is the order/receipt view used before an invoice exists.
func ReceiptPayload(po domain.PurchaseOrder, grn domain.GoodsReceipt) domain.ReceiptMatchPayload {
	orderLines := OrderLines(po)
	receiptLines := ReceiptLines(grn)
	return domain.ReceiptMatchPayload{
		Order: domain.ReceiptMatchOrder{
			ID:                   po.ID,
			Status:               po.Status,
			VendorID:             po.VendorID,
			RequisitionID:        po.RequisitionID,
			ExpectedDeliveryDate: po.ExpectedDeliveryDate,
			Lines:                orderLines,
			Total:                Total(orderLines),
		},
		Receipt: domain.ReceiptMatchReceipt{
			ID:     grn.ID,
			Status: grn.Status,
			Lines:  receiptLines,
			Total:  Total(receiptLines),
		},
		Notes: grn.Notes,
	}
}

func index(lines []domain.MatchLine) map[int64]domain.MatchLine {
	out := make(map[int64]domain.MatchLine, len(lines))
	for _, line := range lines {
		out[line.ItemID] = line
	}
	return out
}

func lineDiscrepancy(kind string, itemID int64, o, r, i domain.MatchLine, expected, actual float64) domain.Discrepancy {
	return domain.Discrepancy{
		Type:     kind,
		ItemID:   &itemID,
		Order:    &o,
		Receipt:  &r,
		Invoice:  &i,
		Expected: expected,
		Actual:   actual,
	}
}

func equal(a float64, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}
