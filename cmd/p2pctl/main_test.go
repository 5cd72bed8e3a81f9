package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"dapurku/backend/internal/config"
	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/service"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/store/memory"
)

func testApp(repo store.Repository) *app {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &app{
		cfg:    config.Config{DatabaseURL: "memory"},
		logger: logger,
		open: func(context.Context, string) (store.Repository, func() error, error) {
			return repo, func() error { return nil }, nil
		},
	}
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := a.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// seedInvoice drives one order through receipt and invoicing so the
// ledger, price history and match have something to report.
func seedInvoice(t *testing.T, repo store.Repository) domain.Invoice {
	t.Helper()
	svc := service.New(repo, service.Options{Logger: testApp(repo).logger})
	as := func(actor domain.Actor) context.Context {
		return service.WithActor(context.Background(), actor)
	}
	staff := domain.Actor{UserID: 7, Username: "kitchen.staff", Role: domain.RoleDepartmentStaff, LocationID: 1, DepartmentID: 1}
	head := domain.Actor{UserID: 6, Username: "kitchen.head", Role: domain.RoleDepartmentHead, LocationID: 1, DepartmentID: 1}
	manager := domain.Actor{UserID: 2, Username: "manager.jkt", Role: domain.RoleBranchManager, LocationID: 1}
	buyer := domain.Actor{UserID: 3, Username: "procurement", Role: domain.RoleProcurementHead, LocationID: 1}
	storeKeeper := domain.Actor{UserID: 5, Username: "store.jkt", Role: domain.RoleStoreManager, LocationID: 1}
	finance := domain.Actor{UserID: 4, Username: "finance", Role: domain.RoleFinance, LocationID: 1}

	req, err := svc.CreateRequisition(as(staff), domain.RequisitionCreateRequest{
		LocationID: 1, DepartmentID: 1,
		Lines: []domain.RequisitionLine{{ItemID: 2, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create requisition failed: %v", err)
	}
	if _, err := svc.ReviewRequisition(as(head), req.ID); err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if _, err := svc.ApproveRequisition(as(manager), req.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	po, err := svc.CreatePurchaseOrder(as(buyer), domain.PurchaseOrderCreateRequest{
		RequisitionID:        req.ID,
		VendorID:             1,
		ExpectedDeliveryDate: "2026-10-20",
		Lines:                []domain.PurchaseOrderLine{{ItemID: 2, OrderedQty: 4, UnitPrice: 12000}},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	grn, err := svc.CreateGoodsReceipt(as(storeKeeper), domain.GoodsReceiptCreateRequest{
		PurchaseOrderID:      po.ID,
		DeliverySignedByName: "Sari",
		Lines:                []domain.GoodsReceiptLine{{ItemID: 2, ReceivedQty: 4, UnitPrice: 12000}},
	})
	if err != nil {
		t.Fatalf("create goods receipt failed: %v", err)
	}
	if _, err := svc.ConfirmGoodsReceiptStore(as(storeKeeper), grn.ID); err != nil {
		t.Fatalf("store confirm failed: %v", err)
	}
	if _, err := svc.ConfirmGoodsReceiptFinance(as(finance), grn.ID); err != nil {
		t.Fatalf("finance confirm failed: %v", err)
	}
	inv, err := svc.CreateInvoice(as(finance), domain.InvoiceCreateRequest{
		GoodsReceiptID:      grn.ID,
		VendorInvoiceNumber: "INV-CLI-1",
		Lines:               []domain.InvoiceLineInput{{ItemID: 2, BilledQty: 4, UnitPrice: 12000}},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	return inv
}

func TestOnHandPrintsLedgerBalance(t *testing.T) {
	repo := memory.NewSeeded()
	seedInvoice(t, repo)

	out, err := run(t, testApp(repo), "on-hand", "--location", "1", "--item", "2")
	if err != nil {
		t.Fatalf("on-hand failed: %v", err)
	}
	var level domain.StockLevel
	if err := json.Unmarshal([]byte(out), &level); err != nil {
		t.Fatalf("decode output failed: %v (%s)", err, out)
	}
	if level.OnHand != 4 || level.LocationID != 1 || level.ItemID != 2 {
		t.Fatalf("unexpected stock level %+v", level)
	}
}

func TestMatchPrintsThreeWayResult(t *testing.T) {
	repo := memory.NewSeeded()
	inv := seedInvoice(t, repo)

	out, err := run(t, testApp(repo), "match", "--invoice", jsonID(inv.ID))
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	var result domain.MatchResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output failed: %v (%s)", err, out)
	}
	if !result.IsMatch || len(result.Discrepancies) != 0 {
		t.Fatalf("expected a clean match, got %+v", result)
	}
}

func TestMatchUnknownInvoiceFails(t *testing.T) {
	_, err := run(t, testApp(memory.NewSeeded()), "match", "--invoice", "999")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOutliersPrintsEmptyListWithoutHistory(t *testing.T) {
	out, err := run(t, testApp(memory.NewSeeded()), "outliers", "--location", "1", "--vendor", "1")
	if err != nil {
		t.Fatalf("outliers failed: %v", err)
	}
	var rows []domain.VendorOutlier
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode output failed: %v (%s)", err, out)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected an empty list, got %s", out)
	}
}

func TestOutliersRejectsNegativeThreshold(t *testing.T) {
	_, err := run(t, testApp(memory.NewSeeded()), "outliers", "--location", "1", "--vendor", "1", "--threshold=-5")
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	a := testApp(memory.NewSeeded())
	a.cfg.DatabaseURL = ""
	if _, err := run(t, a, "migrate"); err == nil {
		t.Fatalf("expected migrate without a database url to fail")
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
