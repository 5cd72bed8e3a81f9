package store

import (
	"context"
	"errors"

	"dapurku/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("conflicting state")
	ErrValidation         = errors.New("validation failed")
	ErrAlreadyFinal       = errors.New("already final")
	ErrInvalidState       = errors.New("invalid state")
)

// Repository is the single transactional store. Every method that changes
// state commits all of its side effects (ledger rows, derived statuses,
// observations, alerts) together or not at all.
type Repository interface {
	ListLocations(ctx context.Context) ([]domain.Location, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
	ListDepartments(ctx context.Context, locationID int64) ([]domain.Department, error)
	CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	GetVendor(ctx context.Context, id int64) (*domain.Vendor, error)
	ListVendors(ctx context.Context) ([]domain.Vendor, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateRequisition(ctx context.Context, req domain.Requisition) (*domain.Requisition, error)
	GetRequisition(ctx context.Context, id int64) (*domain.Requisition, error)
	ListRequisitions(ctx context.Context, filter domain.DocumentFilter) ([]domain.Requisition, error)
	TransitionRequisition(ctx context.Context, id int64, action string) (*domain.Requisition, *domain.Requisition, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filter domain.DocumentFilter) ([]domain.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, *domain.PurchaseOrder, error)

	CreateGoodsReceipt(ctx context.Context, grn domain.GoodsReceipt) (*domain.GoodsReceipt, error)
	GetGoodsReceipt(ctx context.Context, id int64) (*domain.GoodsReceipt, error)
	ListGoodsReceipts(ctx context.Context, filter domain.DocumentFilter) ([]domain.GoodsReceipt, error)
	ConfirmGoodsReceiptStore(ctx context.Context, id int64, signerID int64) (*domain.GoodsReceipt, *domain.GoodsReceipt, error)
	ConfirmGoodsReceiptFinance(ctx context.Context, id int64, signerID int64, policy domain.PricePolicy) (*domain.FinanceConfirmation, error)
	GetReceiptMatchPayload(ctx context.Context, id int64) (*domain.ReceiptMatchPayload, error)

	CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.DocumentFilter) ([]domain.Invoice, error)
	EvaluateInvoiceMatch(ctx context.Context, id int64) (*domain.Invoice, *domain.Invoice, *domain.MatchResult, error)
	ApproveInvoiceForPayment(ctx context.Context, id int64) (*domain.Invoice, *domain.Invoice, error)
	GetThreeWayMatch(ctx context.Context, invoiceID int64) (*domain.MatchResult, error)
	GetInvoiceBalance(ctx context.Context, invoiceID int64) (*domain.InvoiceBalance, error)

	CreatePayment(ctx context.Context, payment domain.Payment, tolerance float64) (*domain.Payment, *domain.InvoiceBalance, error)
	GetPayment(ctx context.Context, id int64) (*domain.Payment, error)
	ListPayments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Payment, error)
	TransitionPayment(ctx context.Context, id int64, action string) (*domain.Payment, *domain.Payment, error)

	OnHand(ctx context.Context, locationID int64, itemID int64) (float64, error)
	StockByLocation(ctx context.Context, itemID int64) ([]domain.LocationStock, error)
	ListMovementsBySource(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)

	ListPriceObservations(ctx context.Context, filter domain.PriceObservationFilter) ([]domain.PriceObservation, error)
	ListPriceAlerts(ctx context.Context, filter domain.PriceAlertFilter) ([]domain.PriceAlert, error)
	LatestObservationsByItem(ctx context.Context, locationID int64, vendorID int64) ([]domain.PriceObservation, error)
	PriorUnitPrices(ctx context.Context, obs domain.PriceObservation, window int) ([]float64, error)

	CreatePettyCash(ctx context.Context, pc domain.PettyCash) (*domain.PettyCash, error)
	GetPettyCash(ctx context.Context, id int64) (*domain.PettyCash, error)
	ListPettyCash(ctx context.Context, filter domain.DocumentFilter) ([]domain.PettyCash, error)
	ConfirmPettyCash(ctx context.Context, id int64, actorID int64) (*domain.PettyCash, *domain.PettyCash, []domain.InventoryMovement, error)

	CreatePortioningBatch(ctx context.Context, batch domain.PortioningBatch) (*domain.PortioningBatch, error)
	GetPortioningBatch(ctx context.Context, id int64) (*domain.PortioningBatch, error)
	ListPortioningBatches(ctx context.Context, filter domain.DocumentFilter) ([]domain.PortioningBatch, error)
	ConfirmPortioningBatch(ctx context.Context, id int64, actorID int64) (*domain.PortioningBatch, *domain.PortioningBatch, []domain.InventoryMovement, error)

	CreateAuditEvent(ctx context.Context, event domain.AuditEvent) error
	ListAuditEvents(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}
