package service

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/pricing"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/store/memory"
)

var (
	ceo          = domain.Actor{UserID: 1, Username: "ceo", Role: domain.RoleCEO}
	managerJKT   = domain.Actor{UserID: 2, Username: "manager.jkt", Role: domain.RoleBranchManager, LocationID: 1}
	procurement  = domain.Actor{UserID: 3, Username: "procurement", Role: domain.RoleProcurementHead, LocationID: 1}
	finance      = domain.Actor{UserID: 4, Username: "finance", Role: domain.RoleFinance, LocationID: 1}
	storeJKT     = domain.Actor{UserID: 5, Username: "store.jkt", Role: domain.RoleStoreManager, LocationID: 1}
	kitchenHead  = domain.Actor{UserID: 6, Username: "kitchen.head", Role: domain.RoleDepartmentHead, LocationID: 1, DepartmentID: 1}
	kitchenStaff = domain.Actor{UserID: 7, Username: "kitchen.staff", Role: domain.RoleDepartmentStaff, LocationID: 1, DepartmentID: 1}
	managerBDG   = domain.Actor{UserID: 8, Username: "manager.bdg", Role: domain.RoleBranchManager, LocationID: 2}
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingSink) Emit(_ context.Context, event domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type failingSink struct{}

func (failingSink) Emit(_ context.Context, _ domain.AuditEvent) error {
	return errors.New("audit store unavailable")
}

type countingCache struct {
	entries     map[string][]domain.VendorOutlier
	invalidated int
}

func (c *countingCache) Get(_ context.Context, _ int64, _ int64, variant string) ([]domain.VendorOutlier, bool, error) {
	v, ok := c.entries[variant]
	return v, ok, nil
}

func (c *countingCache) Set(_ context.Context, _ int64, _ int64, variant string, value []domain.VendorOutlier, _ time.Duration) error {
	c.entries[variant] = value
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, _ int64, _ int64) error {
	c.invalidated++
	c.entries = make(map[string][]domain.VendorOutlier)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T) (*Service, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	svc := New(memory.NewSeeded(), Options{Audit: sink, Logger: quietLogger()})
	return svc, sink
}

func as(actor domain.Actor) context.Context {
	return WithActor(context.Background(), actor)
}

// receive runs a requisition through to a finance-confirmed receipt with a
// single line at the given price.
func receive(t *testing.T, svc *Service, itemID int64, qty float64, price float64) (domain.PurchaseOrder, domain.FinanceConfirmation) {
	t.Helper()
	req, err := svc.CreateRequisition(as(kitchenStaff), domain.RequisitionCreateRequest{
		LocationID:   1,
		DepartmentID: 1,
		Lines:        []domain.RequisitionLine{{ItemID: itemID, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("create requisition failed: %v", err)
	}
	if _, err := svc.ReviewRequisition(as(kitchenHead), req.ID); err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if _, err := svc.ApproveRequisition(as(managerJKT), req.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	po, err := svc.CreatePurchaseOrder(as(procurement), domain.PurchaseOrderCreateRequest{
		RequisitionID:        req.ID,
		VendorID:             1,
		ExpectedDeliveryDate: "2026-10-20",
		Lines:                []domain.PurchaseOrderLine{{ItemID: itemID, OrderedQty: qty, UnitPrice: price}},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	grn, err := svc.CreateGoodsReceipt(as(storeJKT), domain.GoodsReceiptCreateRequest{
		PurchaseOrderID:      po.ID,
		DeliverySignedByName: "Budi",
		Lines:                []domain.GoodsReceiptLine{{ItemID: itemID, ReceivedQty: qty, UnitPrice: price}},
	})
	if err != nil {
		t.Fatalf("create goods receipt failed: %v", err)
	}
	if _, err := svc.ConfirmGoodsReceiptStore(as(storeJKT), grn.ID); err != nil {
		t.Fatalf("store confirm failed: %v", err)
	}
	confirmation, err := svc.ConfirmGoodsReceiptFinance(as(finance), grn.ID)
	if err != nil {
		t.Fatalf("finance confirm failed: %v", err)
	}
	return po, confirmation
}

func TestProcurementChainMatchesAndPays(t *testing.T) {
	svc, _ := newTestService(t)

	_, confirmation := receive(t, svc, 7, 3, 2.0)
	if confirmation.Order.Status != domain.OrderFullyReceived {
		t.Fatalf("expected FULLY_RECEIVED, got %s", confirmation.Order.Status)
	}

	inv, err := svc.CreateInvoice(as(finance), domain.InvoiceCreateRequest{
		GoodsReceiptID:      confirmation.Receipt.ID,
		VendorInvoiceNumber: "INV-001",
		Lines:               []domain.InvoiceLineInput{{ItemID: 7, BilledQty: 3, UnitPrice: 2.0}},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	eval, err := svc.EvaluateInvoiceMatch(as(finance), inv.ID)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if eval.Invoice.Status != domain.InvoiceMatched || !eval.Match.IsMatch {
		t.Fatalf("expected MATCHED, got %s with %d discrepancies", eval.Invoice.Status, len(eval.Match.Discrepancies))
	}
	if _, err := svc.ApproveInvoiceForPayment(as(finance), inv.ID); err != nil {
		t.Fatalf("approve for payment failed: %v", err)
	}

	first, err := svc.CreatePayment(as(finance), domain.PaymentCreateRequest{InvoiceID: inv.ID, Amount: 4, Method: "transfer"})
	if err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if math.Abs(first.Balance.Outstanding-2) > 1e-9 {
		t.Fatalf("expected outstanding 2, got %v", first.Balance.Outstanding)
	}
	if _, err := svc.CreatePayment(as(finance), domain.PaymentCreateRequest{InvoiceID: inv.ID, Amount: 2.5}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected overpayment to be rejected, got %v", err)
	}

	if _, err := svc.CancelPayment(as(finance), first.Payment.ID); err != nil {
		t.Fatalf("cancel payment failed: %v", err)
	}
	full, err := svc.CreatePayment(as(finance), domain.PaymentCreateRequest{InvoiceID: inv.ID, Amount: 6})
	if err != nil {
		t.Fatalf("full payment after cancel failed: %v", err)
	}
	if _, err := svc.SchedulePayment(as(finance), full.Payment.ID); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	paid, err := svc.MarkPaymentPaid(as(finance), full.Payment.ID)
	if err != nil || paid.Status != domain.PaymentPaid {
		t.Fatalf("mark paid failed: %v (%s)", err, paid.Status)
	}
	if _, err := svc.CancelPayment(as(finance), full.Payment.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict cancelling a paid payment, got %v", err)
	}

	balance, err := svc.GetInvoiceBalance(as(finance), inv.ID)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance.PaidTotal > balance.InvoiceTotal+1e-6 {
		t.Fatalf("paid %v exceeds invoice total %v", balance.PaidTotal, balance.InvoiceTotal)
	}
}

func TestFinanceConfirmPostsOnceAndUpdatesOnHand(t *testing.T) {
	svc, _ := newTestService(t)
	_, confirmation := receive(t, svc, 1, 10, 5.0)

	if len(confirmation.Movements) != 1 || confirmation.Movements[0].Quantity != 10 {
		t.Fatalf("expected one RECEIPT movement of 10, got %+v", confirmation.Movements)
	}
	if _, err := svc.ConfirmGoodsReceiptFinance(as(finance), confirmation.Receipt.ID); !errors.Is(err, store.ErrAlreadyFinal) {
		t.Fatalf("expected already final, got %v", err)
	}

	level, err := svc.OnHand(as(storeJKT), 1, 1)
	if err != nil {
		t.Fatalf("on hand failed: %v", err)
	}
	if level.OnHand != 10 || level.Available != 10 {
		t.Fatalf("expected on hand 10, got %+v", level)
	}

	movements, err := svc.ListMovementsBySource(as(storeJKT), domain.MovementFilter{
		SourceDocumentType: "grn",
		SourceDocumentID:   confirmation.Receipt.ID,
		Page:               domain.Page{Limit: 10},
	})
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected exactly one movement after repeat confirm, got %d", len(movements))
	}
}

func TestPriceJumpRaisesHighAlertAndEmitsInOrder(t *testing.T) {
	svc, sink := newTestService(t)
	receive(t, svc, 2, 1, 100)
	_, confirmation := receive(t, svc, 2, 1, 130)

	if len(confirmation.Alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(confirmation.Alerts))
	}
	alert := confirmation.Alerts[0]
	if alert.Severity != pricing.SeverityHigh || math.Abs(alert.PctChange-30) > 1e-9 {
		t.Fatalf("expected HIGH alert at 30%%, got %s at %v", alert.Severity, alert.PctChange)
	}

	actions := sink.actions()
	tail := actions[len(actions)-3:]
	want := []string{"PRICE_ALERT_CREATED", "GRN_CONFIRMED_FINANCE", "LPO_STATUS_UPDATED_FROM_RECEIPT"}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("expected audit tail %v, got %v", want, tail)
		}
	}

	alerts, err := svc.ListPriceAlerts(as(finance), domain.PriceAlertFilter{Page: domain.Page{Limit: 10}})
	if err != nil {
		t.Fatalf("list alerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].LocationID != 1 {
		t.Fatalf("expected one alert scoped to the actor's branch, got %+v", alerts)
	}
}

func TestDuplicateReceiptLineRejected(t *testing.T) {
	svc, _ := newTestService(t)
	req, err := svc.CreateRequisition(as(kitchenHead), domain.RequisitionCreateRequest{
		LocationID: 1, DepartmentID: 1,
		Lines: []domain.RequisitionLine{{ItemID: 3, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("create requisition failed: %v", err)
	}
	if _, err := svc.ReviewRequisition(as(kitchenHead), req.ID); err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if _, err := svc.ApproveRequisition(as(ceo), req.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	po, err := svc.CreatePurchaseOrder(as(procurement), domain.PurchaseOrderCreateRequest{
		RequisitionID: req.ID, VendorID: 2,
		Lines: []domain.PurchaseOrderLine{{ItemID: 3, OrderedQty: 5, UnitPrice: 14000}},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}

	_, err = svc.CreateGoodsReceipt(as(storeJKT), domain.GoodsReceiptCreateRequest{
		PurchaseOrderID: po.ID,
		Lines: []domain.GoodsReceiptLine{
			{ItemID: 3, ReceivedQty: 2, UnitPrice: 14000},
			{ItemID: 3, ReceivedQty: 3, UnitPrice: 14000},
		},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate item line, got %v", err)
	}
}

func TestRequisitionTransitionsAreForwardOnly(t *testing.T) {
	svc, _ := newTestService(t)
	req, err := svc.CreateRequisition(as(kitchenStaff), domain.RequisitionCreateRequest{
		LocationID: 1, DepartmentID: 1,
		Lines: []domain.RequisitionLine{{ItemID: 4, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create requisition failed: %v", err)
	}

	if _, err := svc.ApproveRequisition(as(managerJKT), req.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition approving a pending requisition, got %v", err)
	}
	if _, err := svc.RejectRequisition(as(kitchenHead), req.ID); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if _, err := svc.ReviewRequisition(as(kitchenHead), req.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected rejected requisition to stay rejected, got %v", err)
	}
	if _, err := svc.CreatePurchaseOrder(as(procurement), domain.PurchaseOrderCreateRequest{
		RequisitionID: req.ID, VendorID: 1,
		Lines: []domain.PurchaseOrderLine{{ItemID: 4, OrderedQty: 2, UnitPrice: 1}},
	}); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure for rejected requisition, got %v", err)
	}
}

func TestRoleAndBranchScopeEnforced(t *testing.T) {
	svc, _ := newTestService(t)
	req, err := svc.CreateRequisition(as(kitchenStaff), domain.RequisitionCreateRequest{
		LocationID: 1, DepartmentID: 1,
		Lines: []domain.RequisitionLine{{ItemID: 1, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create requisition failed: %v", err)
	}

	if _, err := svc.GetRequisition(as(managerBDG), req.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected other branch to be forbidden, got %v", err)
	}
	if _, err := svc.ReviewRequisition(as(kitchenStaff), req.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff review to be forbidden, got %v", err)
	}
	if _, err := svc.CreateRequisition(as(kitchenStaff), domain.RequisitionCreateRequest{
		LocationID: 1, DepartmentID: 2,
		Lines: []domain.RequisitionLine{{ItemID: 1, Quantity: 1}},
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected other department to be forbidden, got %v", err)
	}
	if _, err := svc.ListRequisitions(context.Background(), domain.DocumentFilter{Page: domain.Page{Limit: 10}}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected missing actor to be forbidden, got %v", err)
	}

	list, err := svc.ListRequisitions(as(managerBDG), domain.DocumentFilter{Page: domain.Page{Limit: 10}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected branch listing to exclude other branches, got %d", len(list))
	}
	all, err := svc.ListRequisitions(as(ceo), domain.DocumentFilter{Page: domain.Page{Limit: 10}})
	if err != nil || len(all) != 1 {
		t.Fatalf("expected ceo to list every branch, got %d (%v)", len(all), err)
	}
	if _, err := svc.ListRequisitions(as(ceo), domain.DocumentFilter{Page: domain.Page{Limit: 1001}}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected limit validation, got %v", err)
	}
}

func TestInvoiceDiscrepancyBlocksPayment(t *testing.T) {
	svc, _ := newTestService(t)
	_, confirmation := receive(t, svc, 6, 4, 25000)

	statedTotal := 120000.0
	inv, err := svc.CreateInvoice(as(finance), domain.InvoiceCreateRequest{
		GoodsReceiptID:      confirmation.Receipt.ID,
		VendorInvoiceNumber: "INV-BAD",
		Lines:               []domain.InvoiceLineInput{{ItemID: 6, BilledQty: 4, UnitPrice: 25000, LineTotal: &statedTotal}},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	eval, err := svc.EvaluateInvoiceMatch(as(finance), inv.ID)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if eval.Invoice.Status != domain.InvoiceDiscrepancy || eval.Match.IsMatch {
		t.Fatalf("expected DISCREPANCY, got %s", eval.Invoice.Status)
	}
	if eval.Invoice.Notes == "" {
		t.Fatalf("expected a discrepancy note")
	}
	if _, err := svc.ApproveInvoiceForPayment(as(finance), inv.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected approve to fail from DISCREPANCY, got %v", err)
	}
	if _, err := svc.CreatePayment(as(finance), domain.PaymentCreateRequest{InvoiceID: inv.ID, Amount: 1}); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if _, err := svc.CreateInvoice(as(finance), domain.InvoiceCreateRequest{
		GoodsReceiptID:      confirmation.Receipt.ID,
		VendorInvoiceNumber: "INV-DUP",
		Lines:               []domain.InvoiceLineInput{{ItemID: 6, BilledQty: 4, UnitPrice: 25000}},
	}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second invoice for the same receipt to conflict, got %v", err)
	}
}

func TestInvoiceAgingUsesVendorTerms(t *testing.T) {
	svc, _ := newTestService(t)
	_, confirmation := receive(t, svc, 7, 1, 2.0)
	inv, err := svc.CreateInvoice(as(finance), domain.InvoiceCreateRequest{
		GoodsReceiptID:      confirmation.Receipt.ID,
		VendorInvoiceNumber: "INV-AGE",
		Lines:               []domain.InvoiceLineInput{{ItemID: 7, BilledQty: 1, UnitPrice: 2.0}},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}

	aging, err := svc.GetInvoiceAging(as(finance), inv.ID, inv.CreatedAt.Add(31*24*time.Hour))
	if err != nil {
		t.Fatalf("aging failed: %v", err)
	}
	if aging.TermsDays == nil || *aging.TermsDays != 30 {
		t.Fatalf("expected 30 day terms, got %v", aging.TermsDays)
	}
	if aging.DaysOutstanding != 31 || !aging.IsOverdue {
		t.Fatalf("expected overdue at 31 days, got %+v", aging)
	}
	if _, err := svc.GetInvoiceAging(as(managerJKT), inv.ID, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected branch manager to be refused aging, got %v", err)
	}
}

func TestTermsDays(t *testing.T) {
	if got := termsDays("NET45"); got == nil || *got != 45 {
		t.Fatalf("expected 45, got %v", got)
	}
	if got := termsDays("CASH"); got != nil {
		t.Fatalf("expected no terms for CASH, got %v", *got)
	}
}

func TestPettyCashPostsOnlyCOGSLines(t *testing.T) {
	svc, sink := newTestService(t)
	soap := int64(8)
	oil := int64(4)
	pc, err := svc.CreatePettyCash(as(storeJKT), domain.PettyCashCreateRequest{
		LocationID: 1,
		VendorName: "Warung Bu Siti",
		Lines: []domain.PettyCashLine{
			{ItemID: &oil, Quantity: 2, UnitPrice: 18000},
			{ItemID: &soap, Quantity: 1, UnitPrice: 12000},
			{Description: "parkir", Amount: 5000},
		},
	})
	if err != nil {
		t.Fatalf("create petty cash failed: %v", err)
	}
	if pc.Amount != 53000 || pc.Method != "CASH" || pc.Status != domain.PettyCashPending {
		t.Fatalf("unexpected petty cash header: %+v", pc)
	}

	if _, err := svc.ConfirmPettyCash(as(storeJKT), pc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected store manager confirm to be forbidden, got %v", err)
	}
	confirmed, err := svc.ConfirmPettyCash(as(finance), pc.ID)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if len(confirmed.Movements) != 1 || confirmed.Movements[0].ItemID != oil {
		t.Fatalf("expected one movement for the COGS item, got %+v", confirmed.Movements)
	}

	if _, err := svc.ConfirmPettyCash(as(finance), pc.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected repeat confirm to be refused once stock is posted, got %v", err)
	}
	level, _ := svc.OnHand(as(finance), 1, oil)
	if level.OnHand != 2 {
		t.Fatalf("expected on hand 2 after petty cash, got %v", level.OnHand)
	}

	count := 0
	for _, action := range sink.actions() {
		if action == "PETTY_CASH_CONFIRMED" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one confirm event, got %d", count)
	}
}

func TestPortioningConsumesStock(t *testing.T) {
	svc, _ := newTestService(t)
	receive(t, svc, 1, 5, 120000)

	batch, err := svc.CreatePortioningBatch(as(storeJKT), domain.PortioningCreateRequest{
		LocationID: 1,
		Inputs:     []domain.PortioningLine{{ItemID: 1, Quantity: 4}},
		Outputs:    []domain.PortioningLine{{ItemID: 5, Quantity: 30}},
		Losses:     []domain.PortioningLine{{ItemID: 1, Quantity: 0.5}},
	})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	confirmed, err := svc.ConfirmPortioningBatch(as(storeJKT), batch.ID)
	if err != nil {
		t.Fatalf("confirm batch failed: %v", err)
	}
	if confirmed.Batch.Status != domain.PortioningConfirmed || len(confirmed.Movements) != 3 {
		t.Fatalf("unexpected confirmation: %+v", confirmed)
	}

	beef, _ := svc.OnHand(as(storeJKT), 1, 1)
	if math.Abs(beef.OnHand-0.5) > 1e-9 {
		t.Fatalf("expected 0.5 kg beef left, got %v", beef.OnHand)
	}
	portions, _ := svc.OnHand(as(storeJKT), 1, 5)
	if portions.OnHand != 30 {
		t.Fatalf("expected 30 portions, got %v", portions.OnHand)
	}

	short, err := svc.CreatePortioningBatch(as(storeJKT), domain.PortioningCreateRequest{
		LocationID: 1,
		Inputs:     []domain.PortioningLine{{ItemID: 1, Quantity: 1}},
		Outputs:    []domain.PortioningLine{{ItemID: 5, Quantity: 8}},
	})
	if err != nil {
		t.Fatalf("create second batch failed: %v", err)
	}
	if _, err := svc.ConfirmPortioningBatch(as(storeJKT), short.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected insufficient stock conflict, got %v", err)
	}
}

func TestVendorOutliersCachedUntilNextConfirmation(t *testing.T) {
	outlierCache := &countingCache{entries: make(map[string][]domain.VendorOutlier)}
	svc := New(memory.NewSeeded(), Options{OutlierCache: outlierCache, Logger: quietLogger()})

	receive(t, svc, 2, 1, 100)
	receive(t, svc, 2, 1, 60)
	receive(t, svc, 3, 1, 10)

	outliers, err := svc.VendorOutliers(as(procurement), domain.OutlierQuery{LocationID: 1, VendorID: 1})
	if err != nil {
		t.Fatalf("outliers failed: %v", err)
	}
	if len(outliers) != 1 || outliers[0].ItemID != 2 || math.Abs(outliers[0].PctChange+40) > 1e-9 {
		t.Fatalf("expected item 2 at -40%%, got %+v", outliers)
	}
	if len(outlierCache.entries) != 1 {
		t.Fatalf("expected result to be cached")
	}

	receive(t, svc, 3, 1, 10)
	if len(outlierCache.entries) != 0 || outlierCache.invalidated == 0 {
		t.Fatalf("expected finance confirm to invalidate the cache")
	}

	if _, err := svc.VendorOutliers(as(procurement), domain.OutlierQuery{LocationID: 1}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected vendor validation, got %v", err)
	}
	if _, err := svc.VendorOutliers(as(kitchenStaff), domain.OutlierQuery{LocationID: 1, VendorID: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff to be refused pricing data, got %v", err)
	}
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	svc := New(memory.NewSeeded(), Options{Audit: failingSink{}, Logger: quietLogger()})
	if _, err := svc.CreateRequisition(as(kitchenStaff), domain.RequisitionCreateRequest{
		LocationID: 1, DepartmentID: 1,
		Lines: []domain.RequisitionLine{{ItemID: 1, Quantity: 1}},
	}); err != nil {
		t.Fatalf("expected audit failure to be dropped, got %v", err)
	}
}

func TestAuditEventsPersistedByDefault(t *testing.T) {
	svc := New(memory.NewSeeded(), Options{Logger: quietLogger()})
	receive(t, svc, 7, 3, 2.0)

	events, err := svc.ListAuditEvents(as(managerJKT), domain.AuditFilter{Page: domain.Page{Limit: 100}})
	if err != nil {
		t.Fatalf("list audit failed: %v", err)
	}
	if len(events) == 0 || events[0].Action != "LPO_STATUS_UPDATED_FROM_RECEIPT" {
		t.Fatalf("expected newest event to be the order status update, got %d events", len(events))
	}
	if events[0].Actor.Username != "finance" {
		t.Fatalf("expected finance actor, got %+v", events[0].Actor)
	}
	if _, err := svc.ListAuditEvents(as(managerBDG), domain.AuditFilter{LocationID: 1, Page: domain.Page{Limit: 10}}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected other branch audit to be forbidden, got %v", err)
	}
}
