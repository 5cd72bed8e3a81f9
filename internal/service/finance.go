package service

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/reconcile"
	"dapurku/backend/internal/workflow"
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	actor, err := s.authorize(ctx, financeRoles)
	if err != nil {
		return domain.Invoice{}, err
	}
	grn, err := s.repo.GetGoodsReceipt(ctx, req.GoodsReceiptID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := requireLocation(actor, grn.LocationID); err != nil {
		return domain.Invoice{}, err
	}

	lines := make([]domain.InvoiceLine, 0, len(req.Lines))
	for _, in := range req.Lines {
		line := domain.InvoiceLine{
			ItemID:    in.ItemID,
			BilledQty: in.BilledQty,
			UnitPrice: in.UnitPrice,
			LineTotal: reconcile.LineTotal(in.BilledQty, in.UnitPrice),
		}
		if in.LineTotal != nil {
			line.LineTotal = *in.LineTotal
		}
		lines = append(lines, line)
	}

	var created *domain.Invoice
	err = s.withDocumentLock(ctx, "goods_receipt", grn.ID, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateInvoice(ctx, domain.Invoice{
			GoodsReceiptID:      grn.ID,
			VendorInvoiceNumber: strings.TrimSpace(req.VendorInvoiceNumber),
			Notes:               strings.TrimSpace(req.Notes),
			CreatedBy:           actor.UserID,
			Lines:               lines,
		})
		return err
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.emit(ctx, actor, "INVOICE_CREATED", "invoice", created.ID, created.LocationID, nil, domain.SnapshotInvoice(*created), map[string]any{
		"goods_receipt_id": created.GoodsReceiptID,
		"invoice_total":    reconcile.InvoiceTotal(*created),
	})
	return *created, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	_, inv, err := s.loadInvoice(ctx, anyRole, id)
	return inv, err
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.DocumentFilter) ([]domain.Invoice, error) {
	actor, err := s.authorize(ctx, financeRoles)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = scopeFilter(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) EvaluateInvoiceMatch(ctx context.Context, id int64) (domain.InvoiceEvaluation, error) {
	actor, _, err := s.loadInvoice(ctx, financeRoles, id)
	if err != nil {
		return domain.InvoiceEvaluation{}, err
	}

	var before, after *domain.Invoice
	var match *domain.MatchResult
	err = s.withDocumentLock(ctx, "invoice", id, func(ctx context.Context) error {
		var err error
		before, after, match, err = s.repo.EvaluateInvoiceMatch(ctx, id)
		return err
	})
	if err != nil {
		return domain.InvoiceEvaluation{}, err
	}

	s.emit(ctx, actor, "INVOICE_MATCH_EVALUATED", "invoice", after.ID, after.LocationID,
		domain.SnapshotInvoice(*before), domain.SnapshotInvoice(*after), map[string]any{
			"is_match":          match.IsMatch,
			"discrepancy_count": len(match.Discrepancies),
		})
	return domain.InvoiceEvaluation{Invoice: *after, Match: *match}, nil
}

func (s *Service) ApproveInvoiceForPayment(ctx context.Context, id int64) (domain.Invoice, error) {
	actor, _, err := s.loadInvoice(ctx, financeRoles, id)
	if err != nil {
		return domain.Invoice{}, err
	}

	var before, after *domain.Invoice
	err = s.withDocumentLock(ctx, "invoice", id, func(ctx context.Context) error {
		var err error
		before, after, err = s.repo.ApproveInvoiceForPayment(ctx, id)
		return err
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.emit(ctx, actor, "INVOICE_APPROVED_FOR_PAYMENT", "invoice", after.ID, after.LocationID,
		domain.SnapshotInvoice(*before), domain.SnapshotInvoice(*after), nil)
	return *after, nil
}

func (s *Service) GetThreeWayMatch(ctx context.Context, invoiceID int64) (domain.MatchResult, error) {
	if _, _, err := s.loadInvoice(ctx, financeRoles, invoiceID); err != nil {
		return domain.MatchResult{}, err
	}
	result, err := s.repo.GetThreeWayMatch(ctx, invoiceID)
	if err != nil {
		return domain.MatchResult{}, err
	}
	return *result, nil
}

func (s *Service) GetInvoiceBalance(ctx context.Context, invoiceID int64) (domain.InvoiceBalance, error) {
	if _, _, err := s.loadInvoice(ctx, financeRoles, invoiceID); err != nil {
		return domain.InvoiceBalance{}, err
	}
	balance, err := s.repo.GetInvoiceBalance(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceBalance{}, err
	}
	return *balance, nil
}

// GetInvoiceAging measures an invoice against its vendor's payment terms.
func (s *Service) GetInvoiceAging(ctx context.Context, invoiceID int64, now time.Time) (domain.InvoiceAging, error) {
	_, inv, err := s.loadInvoice(ctx, financeRoles, invoiceID)
	if err != nil {
		return domain.InvoiceAging{}, err
	}
	grn, err := s.repo.GetGoodsReceipt(ctx, inv.GoodsReceiptID)
	if err != nil {
		return domain.InvoiceAging{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, grn.PurchaseOrderID)
	if err != nil {
		return domain.InvoiceAging{}, err
	}

	aging := domain.InvoiceAging{
		InvoiceID:       inv.ID,
		DaysOutstanding: daysBetween(inv.CreatedAt, now),
	}
	vendor, err := s.repo.GetVendor(ctx, po.VendorID)
	if err != nil {
		return domain.InvoiceAging{}, err
	}
	vendorID := vendor.ID
	aging.VendorID = &vendorID
	aging.TermsDays = termsDays(vendor.PaymentTerms)
	aging.IsOverdue = aging.TermsDays != nil && aging.DaysOutstanding > *aging.TermsDays
	return aging, nil
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.PaymentCreateResponse, error) {
	actor, _, err := s.loadInvoice(ctx, financeRoles, req.InvoiceID)
	if err != nil {
		return domain.PaymentCreateResponse{}, err
	}

	var created *domain.Payment
	var balance *domain.InvoiceBalance
	err = s.withDocumentLock(ctx, "invoice", req.InvoiceID, func(ctx context.Context) error {
		var err error
		created, balance, err = s.repo.CreatePayment(ctx, domain.Payment{
			InvoiceID: req.InvoiceID,
			Amount:    req.Amount,
			Method:    strings.TrimSpace(req.Method),
			Reference: strings.TrimSpace(req.Reference),
			CreatedBy: actor.UserID,
		}, s.policy.PaymentTolerance)
		return err
	})
	if err != nil {
		return domain.PaymentCreateResponse{}, err
	}

	s.emit(ctx, actor, "PAYMENT_CREATED", "payment", created.ID, created.LocationID, nil, domain.SnapshotPayment(*created), map[string]any{
		"invoice_id":        created.InvoiceID,
		"outstanding_after": balance.Outstanding,
	})
	return domain.PaymentCreateResponse{Payment: *created, Balance: *balance}, nil
}

func (s *Service) GetPayment(ctx context.Context, id int64) (domain.Payment, error) {
	actor, err := s.authorize(ctx, financeRoles)
	if err != nil {
		return domain.Payment{}, err
	}
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := requireLocation(actor, p.LocationID); err != nil {
		return domain.Payment{}, err
	}
	return *p, nil
}

func (s *Service) ListPayments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Payment, error) {
	actor, err := s.authorize(ctx, financeRoles)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = scopeFilter(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, filter)
}

func (s *Service) SchedulePayment(ctx context.Context, id int64) (domain.Payment, error) {
	return s.transitionPayment(ctx, id, workflow.ActionSchedule, "PAYMENT_SCHEDULED")
}

func (s *Service) MarkPaymentPaid(ctx context.Context, id int64) (domain.Payment, error) {
	return s.transitionPayment(ctx, id, workflow.ActionMarkPaid, "PAYMENT_PAID")
}

func (s *Service) CancelPayment(ctx context.Context, id int64) (domain.Payment, error) {
	return s.transitionPayment(ctx, id, workflow.ActionCancel, "PAYMENT_CANCELLED")
}

func (s *Service) transitionPayment(ctx context.Context, id int64, action string, auditAction string) (domain.Payment, error) {
	current, err := s.GetPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	actor, _ := ActorFromContext(ctx)

	var before, after *domain.Payment
	err = s.withDocumentLock(ctx, "invoice", current.InvoiceID, func(ctx context.Context) error {
		var err error
		before, after, err = s.repo.TransitionPayment(ctx, id, action)
		return err
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.emit(ctx, actor, auditAction, "payment", after.ID, after.LocationID,
		domain.SnapshotPayment(*before), domain.SnapshotPayment(*after), map[string]any{"invoice_id": after.InvoiceID})
	return *after, nil
}

func (s *Service) CreatePettyCash(ctx context.Context, req domain.PettyCashCreateRequest) (domain.PettyCash, error) {
	actor, err := s.authorize(ctx, pettyCashCreators)
	if err != nil {
		return domain.PettyCash{}, err
	}
	if err := requireLocation(actor, req.LocationID); err != nil {
		return domain.PettyCash{}, err
	}
	txnDate, err := parseDate(req.TxnDate)
	if err != nil {
		return domain.PettyCash{}, err
	}

	pc := domain.PettyCash{
		LocationID:  req.LocationID,
		VendorName:  strings.TrimSpace(req.VendorName),
		Description: strings.TrimSpace(req.Description),
		Method:      strings.ToUpper(strings.TrimSpace(req.Method)),
		Reference:   strings.TrimSpace(req.Reference),
		CreatedBy:   actor.UserID,
		Lines:       req.Lines,
	}
	if txnDate != nil {
		pc.TxnDate = *txnDate
	}
	created, err := s.repo.CreatePettyCash(ctx, pc)
	if err != nil {
		return domain.PettyCash{}, err
	}

	s.emit(ctx, actor, "PETTY_CASH_CREATED", "petty_cash", created.ID, created.LocationID, nil, domain.SnapshotPettyCash(*created), map[string]any{
		"line_count": len(created.Lines),
	})
	return *created, nil
}

func (s *Service) GetPettyCash(ctx context.Context, id int64) (domain.PettyCash, error) {
	actor, err := s.authorize(ctx, pettyCashCreators)
	if err != nil {
		return domain.PettyCash{}, err
	}
	pc, err := s.repo.GetPettyCash(ctx, id)
	if err != nil {
		return domain.PettyCash{}, err
	}
	if err := requireLocation(actor, pc.LocationID); err != nil {
		return domain.PettyCash{}, err
	}
	return *pc, nil
}

func (s *Service) ListPettyCash(ctx context.Context, filter domain.DocumentFilter) ([]domain.PettyCash, error) {
	actor, err := s.authorize(ctx, pettyCashCreators)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = scopeFilter(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListPettyCash(ctx, filter)
}

func (s *Service) ConfirmPettyCash(ctx context.Context, id int64) (domain.PettyCashConfirmation, error) {
	actor, err := s.authorize(ctx, financeRoles)
	if err != nil {
		return domain.PettyCashConfirmation{}, err
	}
	current, err := s.repo.GetPettyCash(ctx, id)
	if err != nil {
		return domain.PettyCashConfirmation{}, err
	}
	if err := requireLocation(actor, current.LocationID); err != nil {
		return domain.PettyCashConfirmation{}, err
	}

	var before, after *domain.PettyCash
	var movements []domain.InventoryMovement
	err = s.withDocumentLock(ctx, "petty_cash", id, func(ctx context.Context) error {
		var err error
		before, after, movements, err = s.repo.ConfirmPettyCash(ctx, id, actor.UserID)
		return err
	})
	if err != nil {
		return domain.PettyCashConfirmation{}, err
	}

	if before.Status != after.Status {
		s.emit(ctx, actor, "PETTY_CASH_CONFIRMED", "petty_cash", after.ID, after.LocationID,
			domain.SnapshotPettyCash(*before), domain.SnapshotPettyCash(*after), map[string]any{
				"inventory_movements_created": len(movements),
			})
	}
	return domain.PettyCashConfirmation{PettyCash: *after, Movements: movements}, nil
}

func (s *Service) loadInvoice(ctx context.Context, allowed roleSet, id int64) (domain.Actor, domain.Invoice, error) {
	actor, err := s.authorize(ctx, allowed)
	if err != nil {
		return domain.Actor{}, domain.Invoice{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Actor{}, domain.Invoice{}, err
	}
	if err := requireLocation(actor, inv.LocationID); err != nil {
		return domain.Actor{}, domain.Invoice{}, err
	}
	return actor, *inv, nil
}

// termsDays reads the digits of a payment-terms label, so "NET30" is 30.
// Labels without digits, like "CASH", have no terms.
func termsDays(terms string) *int {
	var digits strings.Builder
	for _, r := range terms {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	days, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &days
}

func daysBetween(from time.Time, to time.Time) int {
	start := time.Date(from.UTC().Year(), from.UTC().Month(), from.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.UTC().Year(), to.UTC().Month(), to.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
