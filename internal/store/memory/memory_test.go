package memory

import (
	"context"
	"errors"
	"testing"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/ledger"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/workflow"
)

func approvedRequisition(t *testing.T, s *Store, itemID int64, qty float64) domain.Requisition {
	t.Helper()
	ctx := context.Background()
	req, err := s.CreateRequisition(ctx, domain.Requisition{
		LocationID:   1,
		DepartmentID: 1,
		RequestedBy:  7,
		Lines:        []domain.RequisitionLine{{ItemID: itemID, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("create requisition failed: %v", err)
	}
	for _, action := range []string{workflow.ActionReview, workflow.ActionApprove} {
		if _, _, err := s.TransitionRequisition(ctx, req.ID, action); err != nil {
			t.Fatalf("%s requisition failed: %v", action, err)
		}
	}
	return *req
}

func storeConfirmedReceipt(t *testing.T, s *Store, lines []domain.GoodsReceiptLine) (domain.PurchaseOrder, domain.GoodsReceipt) {
	t.Helper()
	ctx := context.Background()
	req := approvedRequisition(t, s, lines[0].ItemID, lines[0].ReceivedQty)
	orderLines := make([]domain.PurchaseOrderLine, 0, len(lines))
	for _, line := range lines {
		orderLines = append(orderLines, domain.PurchaseOrderLine{ItemID: line.ItemID, OrderedQty: line.ReceivedQty, UnitPrice: line.UnitPrice})
	}
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{RequisitionID: req.ID, VendorID: 1, CreatedBy: 3, Lines: orderLines})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	grn, err := s.CreateGoodsReceipt(ctx, domain.GoodsReceipt{PurchaseOrderID: po.ID, DeliverySignedByName: "Budi", CreatedBy: 5, Lines: lines})
	if err != nil {
		t.Fatalf("create goods receipt failed: %v", err)
	}
	if _, _, err := s.ConfirmGoodsReceiptStore(ctx, grn.ID, 5); err != nil {
		t.Fatalf("store confirm failed: %v", err)
	}
	return *po, *grn
}

func TestFinanceConfirmPostsLedgerOnce(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	_, grn := storeConfirmedReceipt(t, s, []domain.GoodsReceiptLine{{ItemID: 1, ReceivedQty: 10, UnitPrice: 5.0}})

	result, err := s.ConfirmGoodsReceiptFinance(ctx, grn.ID, 4, domain.PricePolicy{})
	if err != nil {
		t.Fatalf("finance confirm failed: %v", err)
	}
	if len(result.Movements) != 1 || result.Movements[0].Quantity != 10 {
		t.Fatalf("expected one movement of 10, got %+v", result.Movements)
	}
	if result.Order.Status != domain.OrderFullyReceived || result.OrderBefore.Status != domain.OrderIssued {
		t.Fatalf("unexpected order status %s -> %s", result.OrderBefore.Status, result.Order.Status)
	}

	onHand, err := s.OnHand(ctx, 1, 1)
	if err != nil || onHand != 10 {
		t.Fatalf("expected on-hand 10, got %v %v", onHand, err)
	}

	if _, err := s.ConfirmGoodsReceiptFinance(ctx, grn.ID, 4, domain.PricePolicy{}); !errors.Is(err, store.ErrAlreadyFinal) {
		t.Fatalf("expected already final, got %v", err)
	}
	movements, err := s.ListMovementsBySource(ctx, domain.MovementFilter{
		SourceDocumentType: ledger.SourceGoodsReceipt,
		SourceDocumentID:   grn.ID,
		Page:               domain.Page{Limit: 50},
	})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected exactly one movement after retry, got %d", len(movements))
	}
}

func TestDuplicateReceiptLineRejected(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	req := approvedRequisition(t, s, 2, 4)
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{RequisitionID: req.ID, VendorID: 1, Lines: []domain.PurchaseOrderLine{{ItemID: 2, OrderedQty: 4, UnitPrice: 30000}}})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	_, err = s.CreateGoodsReceipt(ctx, domain.GoodsReceipt{PurchaseOrderID: po.ID, Lines: []domain.GoodsReceiptLine{
		{ItemID: 2, ReceivedQty: 2, UnitPrice: 30000},
		{ItemID: 2, ReceivedQty: 2, UnitPrice: 30000},
	}})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate item line, got %v", err)
	}
	receipts, _ := s.ListGoodsReceipts(ctx, domain.DocumentFilter{Page: domain.Page{Limit: 10}})
	if len(receipts) != 0 {
		t.Fatalf("expected no receipt persisted, got %d", len(receipts))
	}
}

func TestPurchaseOrderPreconditions(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	req, err := s.CreateRequisition(ctx, domain.Requisition{LocationID: 1, DepartmentID: 1, Lines: []domain.RequisitionLine{{ItemID: 3, Quantity: 25}}})
	if err != nil {
		t.Fatalf("create requisition failed: %v", err)
	}
	order := domain.PurchaseOrder{RequisitionID: req.ID, VendorID: 2, Lines: []domain.PurchaseOrderLine{{ItemID: 3, OrderedQty: 25, UnitPrice: 14000}}}
	if _, err := s.CreatePurchaseOrder(ctx, order); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed for pending requisition, got %v", err)
	}
	s.TransitionRequisition(ctx, req.ID, workflow.ActionReview)
	s.TransitionRequisition(ctx, req.ID, workflow.ActionApprove)
	first, err := s.CreatePurchaseOrder(ctx, order)
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	if _, err := s.CreatePurchaseOrder(ctx, order); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for second live order, got %v", err)
	}
	if _, _, err := s.CancelPurchaseOrder(ctx, first.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := s.CreateGoodsReceipt(ctx, domain.GoodsReceipt{PurchaseOrderID: first.ID, Lines: []domain.GoodsReceiptLine{{ItemID: 3, ReceivedQty: 25}}}); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed on cancelled order, got %v", err)
	}
	if _, err := s.CreatePurchaseOrder(ctx, order); err != nil {
		t.Fatalf("expected reissue after cancel, got %v", err)
	}
}

func TestCancelBlockedByConfirmedReceipt(t *testing.T) {
	s := NewSeeded()
	po, _ := storeConfirmedReceipt(t, s, []domain.GoodsReceiptLine{{ItemID: 4, ReceivedQty: 6, UnitPrice: 18000}})
	if _, _, err := s.CancelPurchaseOrder(context.Background(), po.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPriceAlertOnSecondReceipt(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	_, first := storeConfirmedReceipt(t, s, []domain.GoodsReceiptLine{{ItemID: 6, ReceivedQty: 5, UnitPrice: 100}})
	if _, err := s.ConfirmGoodsReceiptFinance(ctx, first.ID, 4, domain.PricePolicy{}); err != nil {
		t.Fatalf("first finance confirm failed: %v", err)
	}
	_, second := storeConfirmedReceipt(t, s, []domain.GoodsReceiptLine{{ItemID: 6, ReceivedQty: 5, UnitPrice: 130}})
	result, err := s.ConfirmGoodsReceiptFinance(ctx, second.ID, 4, domain.PricePolicy{})
	if err != nil {
		t.Fatalf("second finance confirm failed: %v", err)
	}
	if len(result.Observations) != 1 || len(result.Alerts) != 1 {
		t.Fatalf("expected one observation and one alert, got %d/%d", len(result.Observations), len(result.Alerts))
	}
	alert := result.Alerts[0]
	if alert.Severity != "HIGH" || alert.ObservationID != result.Observations[0].ID || alert.BaselineUnitPrice != 100 {
		t.Fatalf("unexpected alert %+v", alert)
	}

	alerts, err := s.ListPriceAlerts(ctx, domain.PriceAlertFilter{LocationID: 1, Status: "open", Page: domain.Page{Limit: 10}})
	if err != nil || len(alerts) != 1 {
		t.Fatalf("expected one open alert, got %d %v", len(alerts), err)
	}
}

func TestPaymentCannotExceedOutstanding(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	_, grn := storeConfirmedReceipt(t, s, []domain.GoodsReceiptLine{{ItemID: 7, ReceivedQty: 3, UnitPrice: 2.0}})
	if _, err := s.ConfirmGoodsReceiptFinance(ctx, grn.ID, 4, domain.PricePolicy{}); err != nil {
		t.Fatalf("finance confirm failed: %v", err)
	}
	inv, err := s.CreateInvoice(ctx, domain.Invoice{GoodsReceiptID: grn.ID, VendorInvoiceNumber: "INV-1", Lines: []domain.InvoiceLine{{ItemID: 7, BilledQty: 3, UnitPrice: 2.0, LineTotal: 6.0}}})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	if _, _, err := s.CreatePayment(ctx, domain.Payment{InvoiceID: inv.ID, Amount: 1}, 1e-6); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed before approval, got %v", err)
	}
	if _, _, _, err := s.EvaluateInvoiceMatch(ctx, inv.ID); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if _, _, err := s.ApproveInvoiceForPayment(ctx, inv.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	first, balance, err := s.CreatePayment(ctx, domain.Payment{InvoiceID: inv.ID, Amount: 4}, 1e-6)
	if err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if balance.Outstanding != 2 {
		t.Fatalf("expected outstanding 2, got %v", balance.Outstanding)
	}
	if _, _, err := s.CreatePayment(ctx, domain.Payment{InvoiceID: inv.ID, Amount: 2.5}, 1e-6); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict over balance, got %v", err)
	}
	if _, _, err := s.TransitionPayment(ctx, first.ID, workflow.ActionCancel); err != nil {
		t.Fatalf("cancel payment failed: %v", err)
	}
	if _, _, err := s.CreatePayment(ctx, domain.Payment{InvoiceID: inv.ID, Amount: 6}, 1e-6); err != nil {
		t.Fatalf("expected full payment after cancel, got %v", err)
	}
}

func TestPortioningRequiresStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	batch, err := s.CreatePortioningBatch(ctx, domain.PortioningBatch{
		LocationID: 1,
		Inputs:     []domain.PortioningLine{{ItemID: 1, Quantity: 5}},
		Outputs:    []domain.PortioningLine{{ItemID: 5, Quantity: 20}},
	})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	if _, _, _, err := s.ConfirmPortioningBatch(ctx, batch.ID, 5); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict without stock, got %v", err)
	}

	_, grn := storeConfirmedReceipt(t, s, []domain.GoodsReceiptLine{{ItemID: 1, ReceivedQty: 8, UnitPrice: 120000}})
	if _, err := s.ConfirmGoodsReceiptFinance(ctx, grn.ID, 4, domain.PricePolicy{}); err != nil {
		t.Fatalf("finance confirm failed: %v", err)
	}
	_, after, movements, err := s.ConfirmPortioningBatch(ctx, batch.ID, 5)
	if err != nil {
		t.Fatalf("confirm batch failed: %v", err)
	}
	if after.Status != domain.PortioningConfirmed || len(movements) != 2 {
		t.Fatalf("unexpected confirm result %s %d", after.Status, len(movements))
	}
	beef, _ := s.OnHand(ctx, 1, 1)
	portions, _ := s.OnHand(ctx, 1, 5)
	if beef != 3 || portions != 20 {
		t.Fatalf("unexpected stock beef=%v portions=%v", beef, portions)
	}
}

func TestListPaginationValidated(t *testing.T) {
	s := NewSeeded()
	if _, err := s.ListInvoices(context.Background(), domain.DocumentFilter{Page: domain.Page{Limit: 0}}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.ListInvoices(context.Background(), domain.DocumentFilter{Page: domain.Page{Limit: 1001}}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnorderedReceiptLineLeavesOrderIssued(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	req := approvedRequisition(t, s, 3, 20)
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{RequisitionID: req.ID, VendorID: 1, Lines: []domain.PurchaseOrderLine{{ItemID: 3, OrderedQty: 20, UnitPrice: 14000}}})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	grn, err := s.CreateGoodsReceipt(ctx, domain.GoodsReceipt{PurchaseOrderID: po.ID, Lines: []domain.GoodsReceiptLine{{ItemID: 8, ReceivedQty: 5, UnitPrice: 9000}}})
	if err != nil {
		t.Fatalf("create goods receipt failed: %v", err)
	}
	if _, _, err := s.ConfirmGoodsReceiptStore(ctx, grn.ID, 5); err != nil {
		t.Fatalf("store confirm failed: %v", err)
	}
	result, err := s.ConfirmGoodsReceiptFinance(ctx, grn.ID, 4, domain.PricePolicy{})
	if err != nil {
		t.Fatalf("finance confirm failed: %v", err)
	}
	if result.Order.Status != domain.OrderIssued {
		t.Fatalf("expected order to stay ISSUED, got %s", result.Order.Status)
	}
}

func TestOrderFullyReceivedAcrossTwoReceipts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	req := approvedRequisition(t, s, 1, 10)
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{RequisitionID: req.ID, VendorID: 1, Lines: []domain.PurchaseOrderLine{{ItemID: 1, OrderedQty: 10, UnitPrice: 120000}}})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}

	confirm := func(qty float64) *domain.FinanceConfirmation {
		t.Helper()
		grn, err := s.CreateGoodsReceipt(ctx, domain.GoodsReceipt{PurchaseOrderID: po.ID, Lines: []domain.GoodsReceiptLine{{ItemID: 1, ReceivedQty: qty, UnitPrice: 120000}}})
		if err != nil {
			t.Fatalf("create goods receipt failed: %v", err)
		}
		if _, _, err := s.ConfirmGoodsReceiptStore(ctx, grn.ID, 5); err != nil {
			t.Fatalf("store confirm failed: %v", err)
		}
		result, err := s.ConfirmGoodsReceiptFinance(ctx, grn.ID, 4, domain.PricePolicy{})
		if err != nil {
			t.Fatalf("finance confirm failed: %v", err)
		}
		return result
	}

	first := confirm(6)
	if first.Order.Status != domain.OrderPartiallyReceived {
		t.Fatalf("expected PARTIALLY_RECEIVED after 6 of 10, got %s", first.Order.Status)
	}
	second := confirm(4)
	if second.OrderBefore.Status != domain.OrderPartiallyReceived || second.Order.Status != domain.OrderFullyReceived {
		t.Fatalf("expected PARTIALLY_RECEIVED -> FULLY_RECEIVED, got %s -> %s", second.OrderBefore.Status, second.Order.Status)
	}
	onHand, err := s.OnHand(ctx, 1, 1)
	if err != nil || onHand != 10 {
		t.Fatalf("expected on-hand 10, got %v %v", onHand, err)
	}
}
