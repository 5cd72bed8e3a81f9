package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/ledger"
	"dapurku/backend/internal/pricing"
	"dapurku/backend/internal/reconcile"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/workflow"
)

func (s *Store) CreateRequisition(_ context.Context, req domain.Requisition) (*domain.Requisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: requisition needs at least one line", store.ErrValidation)
	}
	if err := s.requireLocation(req.LocationID); err != nil {
		return nil, err
	}
	dept, ok := s.departments[req.DepartmentID]
	if !ok || dept.LocationID != req.LocationID {
		return nil, fmt.Errorf("%w: department %d at location %d", store.ErrNotFound, req.DepartmentID, req.LocationID)
	}
	itemIDs := make([]int64, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: requisition quantity must be positive", store.ErrValidation)
		}
		itemIDs = append(itemIDs, line.ItemID)
	}
	if err := s.requireItems(itemIDs); err != nil {
		return nil, err
	}

	now := s.now()
	req.ID = s.nextID("requisitions")
	req.Status = domain.RequisitionPending
	req.CreatedAt = now
	req.UpdatedAt = now
	req = cloneRequisition(req)
	s.requisitions[req.ID] = req
	out := cloneRequisition(req)
	return &out, nil
}

func (s *Store) GetRequisition(_ context.Context, id int64) (*domain.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requisitions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneRequisition(req)
	return &out, nil
}

func (s *Store) ListRequisitions(_ context.Context, filter domain.DocumentFilter) ([]domain.Requisition, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Requisition, 0, len(s.requisitions))
	for _, req := range s.requisitions {
		if matchesFilter(filter, req.LocationID, req.Status) {
			result = append(result, cloneRequisition(req))
		}
	}
	slices.SortFunc(result, func(a, b domain.Requisition) int { return cmpID(b.ID, a.ID) })
	return paginate(result, filter.Page), nil
}

func (s *Store) TransitionRequisition(_ context.Context, id int64, action string) (*domain.Requisition, *domain.Requisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requisitions[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	next, err := workflow.NextRequisitionStatus(req.Status, action)
	if err != nil {
		return nil, nil, err
	}
	before := cloneRequisition(req)
	req.Status = next
	req.UpdatedAt = s.now()
	s.requisitions[id] = req
	after := cloneRequisition(req)
	return &before, &after, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requisitions[po.RequisitionID]
	if !ok {
		return nil, fmt.Errorf("%w: requisition %d", store.ErrNotFound, po.RequisitionID)
	}
	if err := workflow.CanCreateOrder(req.Status); err != nil {
		return nil, err
	}
	if _, ok := s.vendors[po.VendorID]; !ok {
		return nil, fmt.Errorf("%w: vendor %d", store.ErrNotFound, po.VendorID)
	}
	for _, existing := range s.orders {
		if existing.RequisitionID == po.RequisitionID && existing.Status != domain.OrderCancelled {
			return nil, fmt.Errorf("%w: requisition %d already has purchase order %d", store.ErrConflict, po.RequisitionID, existing.ID)
		}
	}
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
	if err := s.requireItems(itemIDs); err != nil {
		return nil, err
	}
	if err := uniqueItems(itemIDs); err != nil {
		return nil, err
	}

	now := s.now()
	po.ID = s.nextID("purchase_orders")
	po.LocationID = req.LocationID
	po.Status = domain.OrderIssued
	po.CreatedAt = now
	po.UpdatedAt = now
	po = clonePurchaseOrder(po)
	s.orders[po.ID] = po
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id int64) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePurchaseOrder(po)
	return &out, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, filter domain.DocumentFilter) ([]domain.PurchaseOrder, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseOrder, 0, len(s.orders))
	for _, po := range s.orders {
		if matchesFilter(filter, po.LocationID, po.Status) {
			result = append(result, clonePurchaseOrder(po))
		}
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int { return cmpID(b.ID, a.ID) })
	return paginate(result, filter.Page), nil
}

func (s *Store) CancelPurchaseOrder(_ context.Context, id int64) (*domain.PurchaseOrder, *domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.orders[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	statuses := make([]string, 0)
	for _, grn := range s.receipts {
		if grn.PurchaseOrderID == id {
			statuses = append(statuses, grn.Status)
		}
	}
	if err := workflow.CanCancelOrder(po.Status, statuses); err != nil {
		return nil, nil, err
	}
	before := clonePurchaseOrder(po)
	po.Status = domain.OrderCancelled
	po.UpdatedAt = s.now()
	s.orders[id] = po
	after := clonePurchaseOrder(po)
	return &before, &after, nil
}

func (s *Store) CreateGoodsReceipt(_ context.Context, grn domain.GoodsReceipt) (*domain.GoodsReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.orders[grn.PurchaseOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %d", store.ErrNotFound, grn.PurchaseOrderID)
	}
	if err := workflow.CanCreateReceipt(po.Status); err != nil {
		return nil, err
	}
	if len(grn.Lines) == 0 {
		return nil, fmt.Errorf("%w: goods receipt needs at least one line", store.ErrValidation)
	}
	itemIDs := make([]int64, 0, len(grn.Lines))
	for _, line := range grn.Lines {
		if line.ReceivedQty < 0 || line.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: received quantity and price must not be negative", store.ErrValidation)
		}
		itemIDs = append(itemIDs, line.ItemID)
	}
	if err := s.requireItems(itemIDs); err != nil {
		return nil, err
	}
	if err := uniqueItems(itemIDs); err != nil {
		return nil, err
	}

	now := s.now()
	grn.ID = s.nextID("goods_receipts")
	grn.LocationID = po.LocationID
	grn.Status = domain.ReceiptDraft
	grn.StoreSignedBy = nil
	grn.FinanceSignedBy = nil
	grn.CreatedAt = now
	grn.UpdatedAt = now
	grn = cloneGoodsReceipt(grn)
	s.receipts[grn.ID] = grn
	out := cloneGoodsReceipt(grn)
	return &out, nil
}

func (s *Store) GetGoodsReceipt(_ context.Context, id int64) (*domain.GoodsReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grn, ok := s.receipts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneGoodsReceipt(grn)
	return &out, nil
}

func (s *Store) ListGoodsReceipts(_ context.Context, filter domain.DocumentFilter) ([]domain.GoodsReceipt, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.GoodsReceipt, 0, len(s.receipts))
	for _, grn := range s.receipts {
		if matchesFilter(filter, grn.LocationID, grn.Status) {
			result = append(result, cloneGoodsReceipt(grn))
		}
	}
	slices.SortFunc(result, func(a, b domain.GoodsReceipt) int { return cmpID(b.ID, a.ID) })
	return paginate(result, filter.Page), nil
}

func (s *Store) ConfirmGoodsReceiptStore(_ context.Context, id int64, signerID int64) (*domain.GoodsReceipt, *domain.GoodsReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grn, ok := s.receipts[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	next, err := workflow.ConfirmReceiptStore(grn.Status)
	if err != nil {
		return nil, nil, err
	}
	before := cloneGoodsReceipt(grn)
	grn.Status = next
	grn.StoreSignedBy = idPtr(signerID)
	grn.UpdatedAt = s.now()
	s.receipts[id] = grn
	after := cloneGoodsReceipt(grn)
	return &before, &after, nil
}

// ConfirmGoodsReceiptFinance posts the receipt to the ledger, recomputes the
// order status and records price observations and alerts as one unit.
func (s *Store) ConfirmGoodsReceiptFinance(_ context.Context, id int64, signerID int64, policy domain.PricePolicy) (*domain.FinanceConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grn, ok := s.receipts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	po, ok := s.orders[grn.PurchaseOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %d", store.ErrNotFound, grn.PurchaseOrderID)
	}
	posted := s.countMovements(ledger.SourceGoodsReceipt, grn.ID)
	next, err := workflow.ConfirmReceiptFinance(grn.Status, po.Status, posted)
	if err != nil {
		return nil, err
	}
	policy = pricing.Normalize(policy)
	now := s.now()

	movements := ledger.ReceiptMovements(grn, po, signerID, now)

	ordered := make(map[int64]float64, len(po.Lines))
	for _, line := range po.Lines {
		ordered[line.ItemID] += line.OrderedQty
	}
	received := s.receivedByItem(po.ID)
	for _, m := range movements {
		received[m.ItemID] += m.Quantity
	}
	orderStatus := workflow.DeriveOrderStatus(ordered, received)

	var vendorID *int64
	if po.VendorID > 0 {
		vendorID = idPtr(po.VendorID)
	}
	observations := make([]domain.PriceObservation, 0, len(grn.Lines))
	alerts := make([]domain.PriceAlert, 0)
	obsSeq, alertSeq := s.seq["price_observations"], s.seq["price_alerts"]
	for _, line := range grn.Lines {
		if s.hasObservation(ledger.SourceGoodsReceipt, grn.ID, line.ItemID) {
			continue
		}
		obsSeq++
		obs := domain.PriceObservation{
			ID:                 obsSeq,
			LocationID:         grn.LocationID,
			VendorID:           vendorID,
			ItemID:             line.ItemID,
			UnitPrice:          line.UnitPrice,
			Quantity:           line.ReceivedQty,
			SourceDocumentType: ledger.SourceGoodsReceipt,
			SourceDocumentID:   grn.ID,
			GoodsReceiptID:     idPtr(grn.ID),
			CreatedBy:          signerID,
			CreatedAt:          now,
		}
		priors := pricing.PriorWindow(obs, s.observations, policy.Window)
		alert, err := pricing.Evaluate(obs, priors, policy)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
		if alert != nil {
			alertSeq++
			alert.ID = alertSeq
			alerts = append(alerts, *alert)
		}
	}

	result := &domain.FinanceConfirmation{
		ReceiptBefore: cloneGoodsReceipt(grn),
		OrderBefore:   clonePurchaseOrder(po),
	}
	for i := range movements {
		movements[i].ID = s.nextID("inventory_movements")
	}
	s.movements = append(s.movements, movements...)
	s.observations = append(s.observations, observations...)
	s.alerts = append(s.alerts, alerts...)
	s.seq["price_observations"], s.seq["price_alerts"] = obsSeq, alertSeq

	grn.Status = next
	grn.FinanceSignedBy = idPtr(signerID)
	grn.UpdatedAt = now
	s.receipts[grn.ID] = grn
	if po.Status != orderStatus {
		po.Status = orderStatus
		po.UpdatedAt = now
		s.orders[po.ID] = po
	}

	result.Receipt = cloneGoodsReceipt(grn)
	result.Order = clonePurchaseOrder(po)
	result.Movements = slices.Clone(movements)
	result.Observations = observations
	result.Alerts = alerts
	return result, nil
}

func (s *Store) GetReceiptMatchPayload(_ context.Context, id int64) (*domain.ReceiptMatchPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grn, ok := s.receipts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	po, ok := s.orders[grn.PurchaseOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %d", store.ErrNotFound, grn.PurchaseOrderID)
	}
	payload := reconcile.ReceiptPayload(po, grn)
	return &payload, nil
}

func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grn, ok := s.receipts[inv.GoodsReceiptID]
	if !ok {
		return nil, fmt.Errorf("%w: goods receipt %d", store.ErrNotFound, inv.GoodsReceiptID)
	}
	hasInvoice := false
	for _, existing := range s.invoices {
		if existing.GoodsReceiptID == grn.ID {
			hasInvoice = true
			break
		}
	}
	if err := workflow.CanCreateInvoice(grn.Status, hasInvoice); err != nil {
		return nil, err
	}
	if len(inv.Lines) == 0 {
		return nil, fmt.Errorf("%w: invoice needs at least one line", store.ErrValidation)
	}
	itemIDs := make([]int64, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		if line.BilledQty < 0 || line.UnitPrice < 0 || line.LineTotal < 0 {
			return nil, fmt.Errorf("%w: invoice values must not be negative", store.ErrValidation)
		}
		itemIDs = append(itemIDs, line.ItemID)
	}
	if err := s.requireItems(itemIDs); err != nil {
		return nil, err
	}
	if err := uniqueItems(itemIDs); err != nil {
		return nil, err
	}

	now := s.now()
	inv.ID = s.nextID("invoices")
	inv.LocationID = grn.LocationID
	inv.Status = domain.InvoiceDraft
	inv.CreatedAt = now
	inv.UpdatedAt = now
	inv = cloneInvoice(inv)
	s.invoices[inv.ID] = inv
	out := cloneInvoice(inv)
	return &out, nil
}

func (s *Store) GetInvoice(_ context.Context, id int64) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneInvoice(inv)
	return &out, nil
}

func (s *Store) ListInvoices(_ context.Context, filter domain.DocumentFilter) ([]domain.Invoice, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if matchesFilter(filter, inv.LocationID, inv.Status) {
			result = append(result, cloneInvoice(inv))
		}
	}
	slices.SortFunc(result, func(a, b domain.Invoice) int { return cmpID(b.ID, a.ID) })
	return paginate(result, filter.Page), nil
}

func (s *Store) EvaluateInvoiceMatch(_ context.Context, id int64) (*domain.Invoice, *domain.Invoice, *domain.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, nil, nil, store.ErrNotFound
	}
	if err := workflow.CanEvaluateInvoice(inv.Status); err != nil {
		return nil, nil, nil, err
	}
	result, err := s.threeWay(inv)
	if err != nil {
		return nil, nil, nil, err
	}
	before := cloneInvoice(inv)
	inv.Status, inv.Notes = workflow.EvaluatedInvoice(inv.Notes, result.IsMatch)
	inv.UpdatedAt = s.now()
	s.invoices[id] = inv
	after := cloneInvoice(inv)
	return &before, &after, &result, nil
}

func (s *Store) ApproveInvoiceForPayment(_ context.Context, id int64) (*domain.Invoice, *domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	next, err := workflow.ApproveInvoice(inv.Status)
	if err != nil {
		return nil, nil, err
	}
	before := cloneInvoice(inv)
	inv.Status = next
	inv.UpdatedAt = s.now()
	s.invoices[id] = inv
	after := cloneInvoice(inv)
	return &before, &after, nil
}

func (s *Store) GetThreeWayMatch(_ context.Context, invoiceID int64) (*domain.MatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	result, err := s.threeWay(inv)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) GetInvoiceBalance(_ context.Context, invoiceID int64) (*domain.InvoiceBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	balance := s.balance(inv)
	return &balance, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment, tolerance float64) (*domain.Payment, *domain.InvoiceBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	inv, ok := s.invoices[payment.InvoiceID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: invoice %d", store.ErrNotFound, payment.InvoiceID)
	}
	result, err := s.threeWay(inv)
	if err != nil {
		return nil, nil, err
	}
	if err := workflow.CanCreatePayment(inv.Status, result.IsMatch); err != nil {
		return nil, nil, err
	}
	balance := s.balance(inv)
	if payment.Amount-balance.Outstanding > tolerance {
		return nil, nil, fmt.Errorf("%w: payment %.2f exceeds outstanding balance %.2f", store.ErrConflict, payment.Amount, balance.Outstanding)
	}

	now := s.now()
	payment.ID = s.nextID("payments")
	payment.LocationID = inv.LocationID
	payment.Status = domain.PaymentPending
	payment.CreatedAt = now
	payment.UpdatedAt = now
	s.payments[payment.ID] = payment

	after := s.balance(inv)
	out := payment
	return &out, &after, nil
}

func (s *Store) GetPayment(_ context.Context, id int64) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPayments(_ context.Context, filter domain.DocumentFilter) ([]domain.Payment, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if matchesFilter(filter, p.LocationID, p.Status) {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Payment) int { return cmpID(b.ID, a.ID) })
	return paginate(result, filter.Page), nil
}

func (s *Store) TransitionPayment(_ context.Context, id int64, action string) (*domain.Payment, *domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	next, err := workflow.NextPaymentStatus(p.Status, action)
	if err != nil {
		return nil, nil, err
	}
	before := p
	p.Status = next
	p.UpdatedAt = s.now()
	s.payments[id] = p
	after := p
	return &before, &after, nil
}

func (s *Store) threeWay(inv domain.Invoice) (domain.MatchResult, error) {
	grn, ok := s.receipts[inv.GoodsReceiptID]
	if !ok {
		return domain.MatchResult{}, fmt.Errorf("%w: goods receipt %d", store.ErrNotFound, inv.GoodsReceiptID)
	}
	po, ok := s.orders[grn.PurchaseOrderID]
	if !ok {
		return domain.MatchResult{}, fmt.Errorf("%w: purchase order %d", store.ErrNotFound, grn.PurchaseOrderID)
	}
	return reconcile.ThreeWay(po, grn, inv), nil
}

func (s *Store) balance(inv domain.Invoice) domain.InvoiceBalance {
	total := decimal.NewFromFloat(reconcile.InvoiceTotal(inv))
	paid := decimal.Zero
	for _, p := range s.payments {
		if p.InvoiceID == inv.ID && p.Status != domain.PaymentCancelled {
			paid = paid.Add(decimal.NewFromFloat(p.Amount))
		}
	}
	invoiceTotal, _ := total.Float64()
	paidTotal, _ := paid.Float64()
	outstanding, _ := total.Sub(paid).Float64()
	return domain.InvoiceBalance{
		InvoiceID:    inv.ID,
		InvoiceTotal: invoiceTotal,
		PaidTotal:    paidTotal,
		Outstanding:  outstanding,
	}
}

// receivedByItem sums posted RECEIPT movements over every receipt of the order.
func (s *Store) receivedByItem(orderID int64) map[int64]float64 {
	receiptIDs := make(map[int64]struct{})
	for _, grn := range s.receipts {
		if grn.PurchaseOrderID == orderID {
			receiptIDs[grn.ID] = struct{}{}
		}
	}
	received := make(map[int64]float64)
	for _, m := range s.movements {
		if m.SourceDocumentType != ledger.SourceGoodsReceipt || m.Status != domain.MovementPosted {
			continue
		}
		if _, ok := receiptIDs[m.SourceDocumentID]; ok {
			received[m.ItemID] += m.Quantity
		}
	}
	return received
}

func matchesFilter(filter domain.DocumentFilter, locationID int64, status string) bool {
	if filter.LocationID > 0 && locationID != filter.LocationID {
		return false
	}
	if filter.Status != "" && status != filter.Status {
		return false
	}
	return true
}

func cloneRequisition(src domain.Requisition) domain.Requisition {
	dup := src
	dup.Lines = slices.Clone(src.Lines)
	return dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	dup.Lines = slices.Clone(src.Lines)
	if src.ExpectedDeliveryDate != nil {
		d := *src.ExpectedDeliveryDate
		dup.ExpectedDeliveryDate = &d
	}
	return dup
}

func cloneGoodsReceipt(src domain.GoodsReceipt) domain.GoodsReceipt {
	dup := src
	dup.Lines = slices.Clone(src.Lines)
	if src.StoreSignedBy != nil {
		dup.StoreSignedBy = idPtr(*src.StoreSignedBy)
	}
	if src.FinanceSignedBy != nil {
		dup.FinanceSignedBy = idPtr(*src.FinanceSignedBy)
	}
	return dup
}

func cloneInvoice(src domain.Invoice) domain.Invoice {
	dup := src
	dup.Lines = slices.Clone(src.Lines)
	return dup
}
