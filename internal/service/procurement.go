package service

import (
	"context"
	"fmt"
	"strings"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/workflow"
)

func (s *Service) CreateRequisition(ctx context.Context, req domain.RequisitionCreateRequest) (domain.Requisition, error) {
	actor, err := s.authorize(ctx, requisitionCreators)
	if err != nil {
		return domain.Requisition{}, err
	}
	if err := requireLocation(actor, req.LocationID); err != nil {
		return domain.Requisition{}, err
	}
	if (actor.Role == domain.RoleDepartmentHead || actor.Role == domain.RoleDepartmentStaff) && actor.DepartmentID != req.DepartmentID {
		return domain.Requisition{}, fmt.Errorf("%w: department %d", ErrForbidden, req.DepartmentID)
	}
	if len(req.Lines) == 0 {
		return domain.Requisition{}, fmt.Errorf("%w: requisition needs at least one line", store.ErrValidation)
	}

	created, err := s.repo.CreateRequisition(ctx, domain.Requisition{
		LocationID:   req.LocationID,
		DepartmentID: req.DepartmentID,
		RequestedBy:  actor.UserID,
		Notes:        strings.TrimSpace(req.Notes),
		Lines:        req.Lines,
	})
	if err != nil {
		return domain.Requisition{}, err
	}

	s.emit(ctx, actor, "REQUISITION_CREATED", "requisition", created.ID, created.LocationID, nil, domain.SnapshotRequisition(*created), map[string]any{
		"department_id": created.DepartmentID,
	})
	return *created, nil
}

func (s *Service) GetRequisition(ctx context.Context, id int64) (domain.Requisition, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return domain.Requisition{}, err
	}
	req, err := s.repo.GetRequisition(ctx, id)
	if err != nil {
		return domain.Requisition{}, err
	}
	if err := requireLocation(actor, req.LocationID); err != nil {
		return domain.Requisition{}, err
	}
	return *req, nil
}

func (s *Service) ListRequisitions(ctx context.Context, filter domain.DocumentFilter) ([]domain.Requisition, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = scopeFilter(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListRequisitions(ctx, filter)
}

func (s *Service) ReviewRequisition(ctx context.Context, id int64) (domain.Requisition, error) {
	return s.transitionRequisition(ctx, id, workflow.ActionReview, requisitionReviewers, "REQUISITION_REVIEWED")
}

func (s *Service) RejectRequisition(ctx context.Context, id int64) (domain.Requisition, error) {
	return s.transitionRequisition(ctx, id, workflow.ActionReject, requisitionReviewers, "REQUISITION_REJECTED")
}

func (s *Service) ApproveRequisition(ctx context.Context, id int64) (domain.Requisition, error) {
	return s.transitionRequisition(ctx, id, workflow.ActionApprove, requisitionApprovers, "REQUISITION_APPROVED")
}

func (s *Service) FinalRejectRequisition(ctx context.Context, id int64) (domain.Requisition, error) {
	return s.transitionRequisition(ctx, id, workflow.ActionFinalReject, requisitionApprovers, "REQUISITION_REJECTED")
}

func (s *Service) transitionRequisition(ctx context.Context, id int64, action string, allowed roleSet, auditAction string) (domain.Requisition, error) {
	actor, err := s.authorize(ctx, allowed)
	if err != nil {
		return domain.Requisition{}, err
	}
	current, err := s.repo.GetRequisition(ctx, id)
	if err != nil {
		return domain.Requisition{}, err
	}
	if err := requireLocation(actor, current.LocationID); err != nil {
		return domain.Requisition{}, err
	}

	var before, after *domain.Requisition
	err = s.withDocumentLock(ctx, "requisition", id, func(ctx context.Context) error {
		var err error
		before, after, err = s.repo.TransitionRequisition(ctx, id, action)
		return err
	})
	if err != nil {
		return domain.Requisition{}, err
	}

	s.emit(ctx, actor, auditAction, "requisition", after.ID, after.LocationID,
		domain.SnapshotRequisition(*before), domain.SnapshotRequisition(*after), map[string]any{"action": action})
	return *after, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, err := s.authorize(ctx, orderManagers)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	requisition, err := s.repo.GetRequisition(ctx, req.RequisitionID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := requireLocation(actor, requisition.LocationID); err != nil {
		return domain.PurchaseOrder{}, err
	}
	expected, err := parseDate(req.ExpectedDeliveryDate)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	var created *domain.PurchaseOrder
	err = s.withDocumentLock(ctx, "requisition", req.RequisitionID, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
			VendorID:             req.VendorID,
			RequisitionID:        req.RequisitionID,
			ExpectedDeliveryDate: expected,
			CreatedBy:            actor.UserID,
			Lines:                req.Lines,
		})
		return err
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.emit(ctx, actor, "LPO_CREATED", "purchase_order", created.ID, created.LocationID, nil, domain.SnapshotPurchaseOrder(*created), map[string]any{
		"requisition_id": created.RequisitionID,
	})
	return *created, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (domain.PurchaseOrder, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := requireLocation(actor, po.LocationID); err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, filter domain.DocumentFilter) ([]domain.PurchaseOrder, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = scopeFilter(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseOrders(ctx, filter)
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id int64, req domain.PurchaseOrderCancelRequest) (domain.PurchaseOrder, error) {
	actor, err := s.authorize(ctx, orderManagers)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	current, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := requireLocation(actor, current.LocationID); err != nil {
		return domain.PurchaseOrder{}, err
	}

	var before, after *domain.PurchaseOrder
	err = s.withDocumentLock(ctx, "purchase_order", id, func(ctx context.Context) error {
		var err error
		before, after, err = s.repo.CancelPurchaseOrder(ctx, id)
		return err
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.emit(ctx, actor, "LPO_CANCELLED", "purchase_order", after.ID, after.LocationID,
		domain.SnapshotPurchaseOrder(*before), domain.SnapshotPurchaseOrder(*after), map[string]any{"reason": strings.TrimSpace(req.Reason)})
	return *after, nil
}

func (s *Service) CreateGoodsReceipt(ctx context.Context, req domain.GoodsReceiptCreateRequest) (domain.GoodsReceipt, error) {
	actor, err := s.authorize(ctx, receivers)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, req.PurchaseOrderID)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	if err := requireLocation(actor, po.LocationID); err != nil {
		return domain.GoodsReceipt{}, err
	}

	var created *domain.GoodsReceipt
	err = s.withDocumentLock(ctx, "purchase_order", po.ID, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateGoodsReceipt(ctx, domain.GoodsReceipt{
			PurchaseOrderID:      po.ID,
			DeliverySignedByName: strings.TrimSpace(req.DeliverySignedByName),
			Notes:                strings.TrimSpace(req.Notes),
			CreatedBy:            actor.UserID,
			Lines:                req.Lines,
		})
		return err
	})
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	s.emit(ctx, actor, "GRN_CREATED", "goods_receipt", created.ID, created.LocationID, nil, domain.SnapshotGoodsReceipt(*created), map[string]any{
		"purchase_order_id": created.PurchaseOrderID,
	})
	return *created, nil
}

func (s *Service) GetGoodsReceipt(ctx context.Context, id int64) (domain.GoodsReceipt, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	grn, err := s.repo.GetGoodsReceipt(ctx, id)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	if err := requireLocation(actor, grn.LocationID); err != nil {
		return domain.GoodsReceipt{}, err
	}
	return *grn, nil
}

func (s *Service) ListGoodsReceipts(ctx context.Context, filter domain.DocumentFilter) ([]domain.GoodsReceipt, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = scopeFilter(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListGoodsReceipts(ctx, filter)
}

func (s *Service) ConfirmGoodsReceiptStore(ctx context.Context, id int64) (domain.GoodsReceipt, error) {
	actor, err := s.authorize(ctx, receivers)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	current, err := s.repo.GetGoodsReceipt(ctx, id)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	if err := requireLocation(actor, current.LocationID); err != nil {
		return domain.GoodsReceipt{}, err
	}

	var before, after *domain.GoodsReceipt
	err = s.withDocumentLock(ctx, "goods_receipt", id, func(ctx context.Context) error {
		var err error
		before, after, err = s.repo.ConfirmGoodsReceiptStore(ctx, id, actor.UserID)
		return err
	})
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	s.emit(ctx, actor, "GRN_CONFIRMED_STORE", "goods_receipt", after.ID, after.LocationID,
		domain.SnapshotGoodsReceipt(*before), domain.SnapshotGoodsReceipt(*after), nil)
	return *after, nil
}

// ConfirmGoodsReceiptFinance posts the receipt to the ledger, refreshes the
// order's received status and records price observations and alerts, all
// in one repository transaction.
func (s *Service) ConfirmGoodsReceiptFinance(ctx context.Context, id int64) (domain.FinanceConfirmation, error) {
	actor, err := s.authorize(ctx, financeRoles)
	if err != nil {
		return domain.FinanceConfirmation{}, err
	}
	current, err := s.repo.GetGoodsReceipt(ctx, id)
	if err != nil {
		return domain.FinanceConfirmation{}, err
	}
	if err := requireLocation(actor, current.LocationID); err != nil {
		return domain.FinanceConfirmation{}, err
	}

	var result *domain.FinanceConfirmation
	err = s.withDocumentLock(ctx, "goods_receipt", id, func(ctx context.Context) error {
		var err error
		result, err = s.repo.ConfirmGoodsReceiptFinance(ctx, id, actor.UserID, s.pricePolicy())
		return err
	})
	if err != nil {
		return domain.FinanceConfirmation{}, err
	}

	if len(result.Observations) > 0 {
		if err := s.outliers.Invalidate(context.WithoutCancel(ctx), result.Order.LocationID, result.Order.VendorID); err != nil {
			s.logger.WithError(err).WithField("goods_receipt_id", id).Warn("outlier cache invalidation failed")
		}
	}

	for _, alert := range result.Alerts {
		s.emit(ctx, actor, "PRICE_ALERT_CREATED", "price_alert", alert.ID, alert.LocationID, nil, domain.SnapshotPriceAlert(alert), map[string]any{
			"goods_receipt_id": result.Receipt.ID,
			"observation_id":   alert.ObservationID,
		})
	}
	s.emit(ctx, actor, "GRN_CONFIRMED_FINANCE", "goods_receipt", result.Receipt.ID, result.Receipt.LocationID,
		domain.SnapshotGoodsReceipt(result.ReceiptBefore), domain.SnapshotGoodsReceipt(result.Receipt), map[string]any{
			"inventory_movements_created": len(result.Movements),
			"lpo_status_before":           result.OrderBefore.Status,
			"lpo_status_after":            result.Order.Status,
			"price_observations_created":  len(result.Observations),
			"price_alerts_created":        len(result.Alerts),
		})
	s.emit(ctx, actor, "LPO_STATUS_UPDATED_FROM_RECEIPT", "purchase_order", result.Order.ID, result.Order.LocationID,
		domain.SnapshotPurchaseOrder(result.OrderBefore), domain.SnapshotPurchaseOrder(result.Order), map[string]any{
			"goods_receipt_id": result.Receipt.ID,
		})
	return *result, nil
}

// GetReceiptMatchPayload returns the order and receipt lines side by side,
// used before an invoice exists.
func (s *Service) GetReceiptMatchPayload(ctx context.Context, id int64) (domain.ReceiptMatchPayload, error) {
	actor, err := s.authorize(ctx, financeRoles)
	if err != nil {
		return domain.ReceiptMatchPayload{}, err
	}
	grn, err := s.repo.GetGoodsReceipt(ctx, id)
	if err != nil {
		return domain.ReceiptMatchPayload{}, err
	}
	if err := requireLocation(actor, grn.LocationID); err != nil {
		return domain.ReceiptMatchPayload{}, err
	}
	payload, err := s.repo.GetReceiptMatchPayload(ctx, id)
	if err != nil {
		return domain.ReceiptMatchPayload{}, err
	}
	return *payload, nil
}
