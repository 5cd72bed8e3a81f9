package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/ledger"
	"dapurku/backend/internal/pricing"
	"dapurku/backend/internal/reconcile"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/workflow"
)

func (s *Store) CreateRequisition(ctx context.Context, req domain.Requisition) (*domain.Requisition, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: requisition needs at least one line", store.ErrValidation)
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: requisition quantity must be positive", store.ErrValidation)
		}
	}

	var created *domain.Requisition
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var deptLocation int64
		if err := tx.QueryRowContext(ctx, `SELECT location_id FROM departments WHERE id = $1`, req.DepartmentID).Scan(&deptLocation); err != nil {
			return err
		}
		if deptLocation != req.LocationID {
			return fmt.Errorf("%w: department %d at location %d", store.ErrNotFound, req.DepartmentID, req.LocationID)
		}

		now := time.Now().UTC()
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO requisitions (location_id, department_id, requested_by, status, notes, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$6)
			RETURNING id
		`, req.LocationID, req.DepartmentID, req.RequestedBy, domain.RequisitionPending, req.Notes, now).Scan(&req.ID); err != nil {
			return err
		}
		for _, line := range req.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO requisition_lines (requisition_id, item_id, quantity)
				VALUES ($1,$2,$3)
			`, req.ID, line.ItemID, line.Quantity); err != nil {
				return err
			}
		}
		loaded, err := loadRequisition(ctx, tx, req.ID, false)
		created = loaded
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetRequisition(ctx context.Context, id int64) (*domain.Requisition, error) {
	req, err := loadRequisition(ctx, s.db, id, false)
	return req, mapError(err)
}

func (s *Store) ListRequisitions(ctx context.Context, filter domain.DocumentFilter) ([]domain.Requisition, error) {
	ids, err := s.listIDs(ctx, "requisitions", filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Requisition, 0, len(ids))
	for _, id := range ids {
		req, err := loadRequisition(ctx, s.db, id, false)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, *req)
	}
	return result, nil
}

func (s *Store) TransitionRequisition(ctx context.Context, id int64, action string) (*domain.Requisition, *domain.Requisition, error) {
	var before, after *domain.Requisition
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		req, err := loadRequisition(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, err := workflow.NextRequisitionStatus(req.Status, action)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE requisitions SET status = $2, updated_at = now() WHERE id = $1`, id, next); err != nil {
			return err
		}
		before = req
		after, err = loadRequisition(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if len(po.Lines) == 0 {
		return nil, fmt.Errorf("%w: purchase order needs at least one line", store.ErrValidation)
	}
	itemIDs := make([]int64, 0, len(po.Lines))
	for _, line := range po.Lines {
		if line.OrderedQty <= 0 || line.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: ordered quantity must be positive and price non-negative", store.ErrValidation)
		}
		itemIDs = append(itemIDs, line.ItemID)
	}
	if err := uniqueItems(itemIDs); err != nil {
		return nil, err
	}

	var created *domain.PurchaseOrder
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		req, err := loadRequisition(ctx, tx, po.RequisitionID, true)
		if err != nil {
			return err
		}
		if err := workflow.CanCreateOrder(req.Status); err != nil {
			return err
		}
		var vendorID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM vendors WHERE id = $1`, po.VendorID).Scan(&vendorID); err != nil {
			return err
		}
		var existing int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM purchase_orders
			WHERE requisition_id = $1 AND status <> $2
			LIMIT 1
		`, po.RequisitionID, domain.OrderCancelled).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%w: requisition %d already has purchase order %d", store.ErrConflict, po.RequisitionID, existing)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := time.Now().UTC()
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO purchase_orders (location_id, vendor_id, requisition_id, expected_delivery_date, status, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
			RETURNING id
		`, req.LocationID, po.VendorID, po.RequisitionID, nullTime(po.ExpectedDeliveryDate), domain.OrderIssued, po.CreatedBy, now).Scan(&po.ID); err != nil {
			return err
		}
		for _, line := range po.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO purchase_order_lines (purchase_order_id, item_id, ordered_qty, unit_price)
				VALUES ($1,$2,$3,$4)
			`, po.ID, line.ItemID, line.OrderedQty, line.UnitPrice); err != nil {
				return err
			}
		}
		created, err = loadPurchaseOrder(ctx, tx, po.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	po, err := loadPurchaseOrder(ctx, s.db, id, false)
	return po, mapError(err)
}

func (s *Store) ListPurchaseOrders(ctx context.Context, filter domain.DocumentFilter) ([]domain.PurchaseOrder, error) {
	ids, err := s.listIDs(ctx, "purchase_orders", filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.PurchaseOrder, 0, len(ids))
	for _, id := range ids {
		po, err := loadPurchaseOrder(ctx, s.db, id, false)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, *po)
	}
	return result, nil
}

func (s *Store) CancelPurchaseOrder(ctx context.Context, id int64) (*domain.PurchaseOrder, *domain.PurchaseOrder, error) {
	var before, after *domain.PurchaseOrder
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		po, err := loadPurchaseOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `SELECT status FROM goods_receipts WHERE purchase_order_id = $1`, id)
		if err != nil {
			return err
		}
		statuses := make([]string, 0, 4)
		for rows.Next() {
			var status string
			if err := rows.Scan(&status); err != nil {
				_ = rows.Close()
				return err
			}
			statuses = append(statuses, status)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		if err := workflow.CanCancelOrder(po.Status, statuses); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE purchase_orders SET status = $2, updated_at = now() WHERE id = $1`, id, domain.OrderCancelled); err != nil {
			return err
		}
		before = po
		after, err = loadPurchaseOrder(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *Store) CreateGoodsReceipt(ctx context.Context, grn domain.GoodsReceipt) (*domain.GoodsReceipt, error) {
	if len(grn.Lines) == 0 {
		return nil, fmt.Errorf("%w: goods receipt needs at least one line", store.ErrValidation)
	}
	for _, line := range grn.Lines {
		if line.ReceivedQty < 0 || line.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: received quantity and price must not be negative", store.ErrValidation)
		}
	}

	var created *domain.GoodsReceipt
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		po, err := loadPurchaseOrder(ctx, tx, grn.PurchaseOrderID, true)
		if err != nil {
			return err
		}
		if err := workflow.CanCreateReceipt(po.Status); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO goods_receipts (location_id, purchase_order_id, status, delivery_signed_by_name, notes, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
			RETURNING id
		`, po.LocationID, po.ID, domain.ReceiptDraft, grn.DeliverySignedByName, grn.Notes, grn.CreatedBy, now).Scan(&grn.ID); err != nil {
			return err
		}
		// (goods_receipt_id, item_id) is unique, so a repeated item fails here.
		for _, line := range grn.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO goods_receipt_lines (goods_receipt_id, item_id, received_qty, unit_price)
				VALUES ($1,$2,$3,$4)
			`, grn.ID, line.ItemID, line.ReceivedQty, line.UnitPrice); err != nil {
				return err
			}
		}
		created, err = loadGoodsReceipt(ctx, tx, grn.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetGoodsReceipt(ctx context.Context, id int64) (*domain.GoodsReceipt, error) {
	grn, err := loadGoodsReceipt(ctx, s.db, id, false)
	return grn, mapError(err)
}

func (s *Store) ListGoodsReceipts(ctx context.Context, filter domain.DocumentFilter) ([]domain.GoodsReceipt, error) {
	ids, err := s.listIDs(ctx, "goods_receipts", filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.GoodsReceipt, 0, len(ids))
	for _, id := range ids {
		grn, err := loadGoodsReceipt(ctx, s.db, id, false)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, *grn)
	}
	return result, nil
}

func (s *Store) ConfirmGoodsReceiptStore(ctx context.Context, id int64, signerID int64) (*domain.GoodsReceipt, *domain.GoodsReceipt, error) {
	var before, after *domain.GoodsReceipt
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		grn, err := loadGoodsReceipt(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, err := workflow.ConfirmReceiptStore(grn.Status)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE goods_receipts SET status = $2, store_signed_by = $3, updated_at = now() WHERE id = $1
		`, id, next, signerID); err != nil {
			return err
		}
		before = grn
		after, err = loadGoodsReceipt(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *Store) ConfirmGoodsReceiptFinance(ctx context.Context, id int64, signerID int64, policy domain.PricePolicy) (*domain.FinanceConfirmation, error) {
	policy = pricing.Normalize(policy)
	var result *domain.FinanceConfirmation
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		grn, err := loadGoodsReceipt(ctx, tx, id, true)
		if err != nil {
			return err
		}
		po, err := loadPurchaseOrder(ctx, tx, grn.PurchaseOrderID, true)
		if err != nil {
			return err
		}
		posted, err := countMovements(ctx, tx, ledger.SourceGoodsReceipt, grn.ID)
		if err != nil {
			return err
		}
		next, err := workflow.ConfirmReceiptFinance(grn.Status, po.Status, posted)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		out := &domain.FinanceConfirmation{ReceiptBefore: *grn, OrderBefore: *po}

		movements := ledger.ReceiptMovements(*grn, *po, signerID, now)
		for i := range movements {
			if err := insertMovement(ctx, tx, &movements[i]); err != nil {
				return err
			}
		}
		out.Movements = movements

		if _, err := tx.ExecContext(ctx, `
			UPDATE goods_receipts SET status = $2, finance_signed_by = $3, updated_at = $4 WHERE id = $1
		`, grn.ID, next, signerID, now); err != nil {
			return err
		}

		ordered := make(map[int64]float64, len(po.Lines))
		for _, line := range po.Lines {
			ordered[line.ItemID] += line.OrderedQty
		}
		received, err := receivedByItem(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		if status := workflow.DeriveOrderStatus(ordered, received); status != po.Status {
			if _, err := tx.ExecContext(ctx, `
				UPDATE purchase_orders SET status = $2, updated_at = $3 WHERE id = $1
			`, po.ID, status, now); err != nil {
				return err
			}
		}

		var vendorID *int64
		if po.VendorID > 0 {
			v := po.VendorID
			vendorID = &v
		}
		out.Observations = make([]domain.PriceObservation, 0, len(grn.Lines))
		out.Alerts = make([]domain.PriceAlert, 0)
		for _, line := range grn.Lines {
			gid := grn.ID
			obs := domain.PriceObservation{
				LocationID:         grn.LocationID,
				VendorID:           vendorID,
				ItemID:             line.ItemID,
				UnitPrice:          line.UnitPrice,
				Quantity:           line.ReceivedQty,
				SourceDocumentType: ledger.SourceGoodsReceipt,
				SourceDocumentID:   grn.ID,
				GoodsReceiptID:     &gid,
				CreatedBy:          signerID,
				CreatedAt:          now,
			}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO price_observations (location_id, vendor_id, item_id, unit_price, quantity, source_document_type, source_document_id, goods_receipt_id, created_by, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (source_document_type, source_document_id, item_id) DO NOTHING
				RETURNING id
			`, obs.LocationID, nullIDPtr(obs.VendorID), obs.ItemID, obs.UnitPrice, obs.Quantity, obs.SourceDocumentType, obs.SourceDocumentID, gid, obs.CreatedBy, obs.CreatedAt).Scan(&obs.ID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			out.Observations = append(out.Observations, obs)

			priors, err := priorUnitPrices(ctx, tx, obs, policy.Window)
			if err != nil {
				return err
			}
			alert, err := pricing.Evaluate(obs, priors, policy)
			if err != nil {
				return err
			}
			if alert == nil {
				continue
			}
			if err := insertAlert(ctx, tx, alert); err != nil {
				return err
			}
			out.Alerts = append(out.Alerts, *alert)
		}

		out.Receipt, err = mustLoad(loadGoodsReceipt(ctx, tx, grn.ID, false))
		if err != nil {
			return err
		}
		out.Order, err = mustLoad(loadPurchaseOrder(ctx, tx, po.ID, false))
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetReceiptMatchPayload(ctx context.Context, id int64) (*domain.ReceiptMatchPayload, error) {
	grn, err := loadGoodsReceipt(ctx, s.db, id, false)
	if err != nil {
		return nil, mapError(err)
	}
	po, err := loadPurchaseOrder(ctx, s.db, grn.PurchaseOrderID, false)
	if err != nil {
		return nil, mapError(err)
	}
	payload := reconcile.ReceiptPayload(*po, *grn)
	return &payload, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if len(inv.Lines) == 0 {
		return nil, fmt.Errorf("%w: invoice needs at least one line", store.ErrValidation)
	}
	for _, line := range inv.Lines {
		if line.BilledQty < 0 || line.UnitPrice < 0 || line.LineTotal < 0 {
			return nil, fmt.Errorf("%w: invoice values must not be negative", store.ErrValidation)
		}
	}

	var created *domain.Invoice
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		grn, err := loadGoodsReceipt(ctx, tx, inv.GoodsReceiptID, true)
		if err != nil {
			return err
		}
		var hasInvoice bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE goods_receipt_id = $1)`, grn.ID).Scan(&hasInvoice); err != nil {
			return err
		}
		if err := workflow.CanCreateInvoice(grn.Status, hasInvoice); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO invoices (location_id, goods_receipt_id, vendor_invoice_number, status, notes, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
			RETURNING id
		`, grn.LocationID, grn.ID, inv.VendorInvoiceNumber, domain.InvoiceDraft, inv.Notes, inv.CreatedBy, now).Scan(&inv.ID); err != nil {
			return err
		}
		for _, line := range inv.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO invoice_lines (invoice_id, item_id, billed_qty, unit_price, line_total)
				VALUES ($1,$2,$3,$4,$5)
			`, inv.ID, line.ItemID, line.BilledQty, line.UnitPrice, line.LineTotal); err != nil {
				return err
			}
		}
		created, err = loadInvoice(ctx, tx, inv.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	inv, err := loadInvoice(ctx, s.db, id, false)
	return inv, mapError(err)
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.DocumentFilter) ([]domain.Invoice, error) {
	ids, err := s.listIDs(ctx, "invoices", filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Invoice, 0, len(ids))
	for _, id := range ids {
		inv, err := loadInvoice(ctx, s.db, id, false)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, *inv)
	}
	return result, nil
}

func (s *Store) EvaluateInvoiceMatch(ctx context.Context, id int64) (*domain.Invoice, *domain.Invoice, *domain.MatchResult, error) {
	var before, after *domain.Invoice
	var match *domain.MatchResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		inv, err := loadInvoice(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := workflow.CanEvaluateInvoice(inv.Status); err != nil {
			return err
		}
		result, err := threeWay(ctx, tx, *inv)
		if err != nil {
			return err
		}
		status, notes := workflow.EvaluatedInvoice(inv.Notes, result.IsMatch)
		if _, err := tx.ExecContext(ctx, `
			UPDATE invoices SET status = $2, notes = $3, updated_at = now() WHERE id = $1
		`, id, status, notes); err != nil {
			return err
		}
		before = inv
		match = &result
		after, err = loadInvoice(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return before, after, match, nil
}

func (s *Store) ApproveInvoiceForPayment(ctx context.Context, id int64) (*domain.Invoice, *domain.Invoice, error) {
	var before, after *domain.Invoice
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		inv, err := loadInvoice(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, err := workflow.ApproveInvoice(inv.Status)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE invoices SET status = $2, updated_at = now() WHERE id = $1`, id, next); err != nil {
			return err
		}
		before = inv
		after, err = loadInvoice(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *Store) GetThreeWayMatch(ctx context.Context, invoiceID int64) (*domain.MatchResult, error) {
	inv, err := loadInvoice(ctx, s.db, invoiceID, false)
	if err != nil {
		return nil, mapError(err)
	}
	result, err := threeWay(ctx, s.db, *inv)
	if err != nil {
		return nil, mapError(err)
	}
	return &result, nil
}

func (s *Store) GetInvoiceBalance(ctx context.Context, invoiceID int64) (*domain.InvoiceBalance, error) {
	inv, err := loadInvoice(ctx, s.db, invoiceID, false)
	if err != nil {
		return nil, mapError(err)
	}
	balance, err := invoiceBalance(ctx, s.db, *inv)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment, tolerance float64) (*domain.Payment, *domain.InvoiceBalance, error) {
	if payment.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	var created *domain.Payment
	var after domain.InvoiceBalance
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		inv, err := loadInvoice(ctx, tx, payment.InvoiceID, true)
		if err != nil {
			return err
		}
		result, err := threeWay(ctx, tx, *inv)
		if err != nil {
			return err
		}
		if err := workflow.CanCreatePayment(inv.Status, result.IsMatch); err != nil {
			return err
		}
		balance, err := invoiceBalance(ctx, tx, *inv)
		if err != nil {
			return err
		}
		if payment.Amount-balance.Outstanding > tolerance {
			return fmt.Errorf("%w: payment %.2f exceeds outstanding balance %.2f", store.ErrConflict, payment.Amount, balance.Outstanding)
		}

		now := time.Now().UTC()
		payment.LocationID = inv.LocationID
		payment.Status = domain.PaymentPending
		payment.CreatedAt = now
		payment.UpdatedAt = now
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO payments (location_id, invoice_id, status, amount, method, reference, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
			RETURNING id
		`, payment.LocationID, payment.InvoiceID, payment.Status, payment.Amount, payment.Method, payment.Reference, payment.CreatedBy, now).Scan(&payment.ID); err != nil {
			return err
		}
		created = &payment
		after, err = invoiceBalance(ctx, tx, *inv)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return created, &after, nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	p, err := loadPayment(ctx, s.db, id, false)
	return p, mapError(err)
}

func (s *Store) ListPayments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Payment, error) {
	ids, err := s.listIDs(ctx, "payments", filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Payment, 0, len(ids))
	for _, id := range ids {
		p, err := loadPayment(ctx, s.db, id, false)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, *p)
	}
	return result, nil
}

func (s *Store) TransitionPayment(ctx context.Context, id int64, action string) (*domain.Payment, *domain.Payment, error) {
	var before, after *domain.Payment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := loadPayment(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, err := workflow.NextPaymentStatus(p.Status, action)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE payments SET status = $2, updated_at = now() WHERE id = $1`, id, next); err != nil {
			return err
		}
		before = p
		after, err = loadPayment(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// listIDs pages through a document table newest first. table is always a
// package constant, never caller input.
func (s *Store) listIDs(ctx context.Context, table string, filter domain.DocumentFilter) ([]int64, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	limit, offset := pageArgs(filter.Page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM `+table+`
		WHERE ($1 = 0 OR location_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`, filter.LocationID, filter.Status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func loadRequisition(ctx context.Context, q queryer, id int64, lock bool) (*domain.Requisition, error) {
	var req domain.Requisition
	err := q.QueryRowContext(ctx, `
		SELECT id, location_id, department_id, requested_by, status, notes, created_at, updated_at
		FROM requisitions
		WHERE id = $1`+lockClause(lock), id).Scan(
		&req.ID, &req.LocationID, &req.DepartmentID, &req.RequestedBy, &req.Status, &req.Notes, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.CreatedAt, req.UpdatedAt = req.CreatedAt.UTC(), req.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT item_id, quantity FROM requisition_lines WHERE requisition_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	req.Lines = make([]domain.RequisitionLine, 0, 8)
	for rows.Next() {
		var line domain.RequisitionLine
		if err := rows.Scan(&line.ItemID, &line.Quantity); err != nil {
			return nil, err
		}
		req.Lines = append(req.Lines, line)
	}
	return &req, rows.Err()
}

func loadPurchaseOrder(ctx context.Context, q queryer, id int64, lock bool) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var expected sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, location_id, vendor_id, requisition_id, expected_delivery_date, status, created_by, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1`+lockClause(lock), id).Scan(
		&po.ID, &po.LocationID, &po.VendorID, &po.RequisitionID, &expected, &po.Status, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expected.Valid {
		d := expected.Time.UTC()
		po.ExpectedDeliveryDate = &d
	}
	po.CreatedAt, po.UpdatedAt = po.CreatedAt.UTC(), po.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT item_id, ordered_qty, unit_price FROM purchase_order_lines WHERE purchase_order_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	po.Lines = make([]domain.PurchaseOrderLine, 0, 8)
	for rows.Next() {
		var line domain.PurchaseOrderLine
		if err := rows.Scan(&line.ItemID, &line.OrderedQty, &line.UnitPrice); err != nil {
			return nil, err
		}
		po.Lines = append(po.Lines, line)
	}
	return &po, rows.Err()
}

func loadGoodsReceipt(ctx context.Context, q queryer, id int64, lock bool) (*domain.GoodsReceipt, error) {
	var grn domain.GoodsReceipt
	var storeSigner, financeSigner sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT id, location_id, purchase_order_id, status, store_signed_by, delivery_signed_by_name, finance_signed_by, notes, created_by, created_at, updated_at
		FROM goods_receipts
		WHERE id = $1`+lockClause(lock), id).Scan(
		&grn.ID, &grn.LocationID, &grn.PurchaseOrderID, &grn.Status, &storeSigner, &grn.DeliverySignedByName, &financeSigner, &grn.Notes, &grn.CreatedBy, &grn.CreatedAt, &grn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	grn.StoreSignedBy = ptrFromNull(storeSigner)
	grn.FinanceSignedBy = ptrFromNull(financeSigner)
	grn.CreatedAt, grn.UpdatedAt = grn.CreatedAt.UTC(), grn.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT item_id, received_qty, unit_price FROM goods_receipt_lines WHERE goods_receipt_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grn.Lines = make([]domain.GoodsReceiptLine, 0, 8)
	for rows.Next() {
		var line domain.GoodsReceiptLine
		if err := rows.Scan(&line.ItemID, &line.ReceivedQty, &line.UnitPrice); err != nil {
			return nil, err
		}
		grn.Lines = append(grn.Lines, line)
	}
	return &grn, rows.Err()
}

func loadInvoice(ctx context.Context, q queryer, id int64, lock bool) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := q.QueryRowContext(ctx, `
		SELECT id, location_id, goods_receipt_id, vendor_invoice_number, status, notes, created_by, created_at, updated_at
		FROM invoices
		WHERE id = $1`+lockClause(lock), id).Scan(
		&inv.ID, &inv.LocationID, &inv.GoodsReceiptID, &inv.VendorInvoiceNumber, &inv.Status, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.CreatedAt, inv.UpdatedAt = inv.CreatedAt.UTC(), inv.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT item_id, billed_qty, unit_price, line_total FROM invoice_lines WHERE invoice_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	inv.Lines = make([]domain.InvoiceLine, 0, 8)
	for rows.Next() {
		var line domain.InvoiceLine
		if err := rows.Scan(&line.ItemID, &line.BilledQty, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return &inv, rows.Err()
}

func loadPayment(ctx context.Context, q queryer, id int64, lock bool) (*domain.Payment, error) {
	var p domain.Payment
	err := q.QueryRowContext(ctx, `
		SELECT id, location_id, invoice_id, status, amount, method, reference, created_by, created_at, updated_at
		FROM payments
		WHERE id = $1`+lockClause(lock), id).Scan(
		&p.ID, &p.LocationID, &p.InvoiceID, &p.Status, &p.Amount, &p.Method, &p.Reference, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, nil
}

func threeWay(ctx context.Context, q queryer, inv domain.Invoice) (domain.MatchResult, error) {
	grn, err := loadGoodsReceipt(ctx, q, inv.GoodsReceiptID, false)
	if err != nil {
		return domain.MatchResult{}, err
	}
	po, err := loadPurchaseOrder(ctx, q, grn.PurchaseOrderID, false)
	if err != nil {
		return domain.MatchResult{}, err
	}
	return reconcile.ThreeWay(*po, *grn, inv), nil
}

func invoiceBalance(ctx context.Context, q queryer, inv domain.Invoice) (domain.InvoiceBalance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT amount FROM payments WHERE invoice_id = $1 AND status <> $2
	`, inv.ID, domain.PaymentCancelled)
	if err != nil {
		return domain.InvoiceBalance{}, err
	}
	defer rows.Close()

	paid := decimal.Zero
	for rows.Next() {
		var amount float64
		if err := rows.Scan(&amount); err != nil {
			return domain.InvoiceBalance{}, err
		}
		paid = paid.Add(decimal.NewFromFloat(amount))
	}
	if err := rows.Err(); err != nil {
		return domain.InvoiceBalance{}, err
	}
	total := decimal.NewFromFloat(reconcile.InvoiceTotal(inv))
	invoiceTotal, _ := total.Float64()
	paidTotal, _ := paid.Float64()
	outstanding, _ := total.Sub(paid).Float64()
	return domain.InvoiceBalance{
		InvoiceID:    inv.ID,
		InvoiceTotal: invoiceTotal,
		PaidTotal:    paidTotal,
		Outstanding:  outstanding,
	}, nil
}

func receivedByItem(ctx context.Context, q queryer, orderID int64) (map[int64]float64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.item_id, COALESCE(SUM(m.quantity), 0)
		FROM inventory_movements m
		JOIN goods_receipts g ON g.id = m.source_document_id
		WHERE m.source_document_type = $1 AND m.status = $2 AND g.purchase_order_id = $3
		GROUP BY m.item_id
	`, ledger.SourceGoodsReceipt, domain.MovementPosted, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	received := make(map[int64]float64)
	for rows.Next() {
		var itemID int64
		var qty float64
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, err
		}
		received[itemID] = qty
	}
	return received, rows.Err()
}

func uniqueItems(itemIDs []int64) error {
	seen := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate line for item %d", store.ErrConflict, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func mustLoad[T any](v *T, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return *v, nil
}
