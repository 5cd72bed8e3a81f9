// Package workflow holds the status graphs of the procurement documents.
// Every function here is a pure decision over the current status; callers
// persist the result.
package workflow

import (
	"fmt"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

const (
	ActionReview      = "review"
	ActionReject      = "reject"
	ActionApprove     = "approve"
	ActionFinalReject = "final-reject"

	ActionSchedule = "schedule"
	ActionMarkPaid = "mark-paid"
	ActionCancel   = "cancel"
)

const DiscrepancyNote = "Three-way match discrepancy detected."

func NextRequisitionStatus(current string, action string) (string, error) {
	switch {
	case current == domain.RequisitionPending && action == ActionReview:
		return domain.RequisitionReviewed, nil
	case current == domain.RequisitionPending && action == ActionReject:
		return domain.RequisitionRejected, nil
	case current == domain.RequisitionReviewed && action == ActionApprove:
		return domain.RequisitionApproved, nil
	case current == domain.RequisitionReviewed && action == ActionFinalReject:
		return domain.RequisitionRejected, nil
	}
	return "", fmt.Errorf("%w: requisition cannot %s from %s", store.ErrInvalidTransition, action, current)
}

// CanCreateOrder checks the requisition an order is issued from.
func CanCreateOrder(requisitionStatus string) error {
	if requisitionStatus != domain.RequisitionApproved {
		return fmt.Errorf("%w: requisition must be APPROVED, got %s", store.ErrPreconditionFailed, requisitionStatus)
	}
	return nil
}

// CanCancelOrder allows cancel only from ISSUED and only while no receipt
// under the order has been confirmed.
func CanCancelOrder(current string, receiptStatuses []string) error {
	if current == domain.OrderCancelled {
		return fmt.Errorf("%w: purchase order already cancelled", store.ErrConflict)
	}
	if current != domain.OrderIssued {
		return fmt.Errorf("%w: purchase order cannot be cancelled from %s", store.ErrConflict, current)
	}
	for _, status := range receiptStatuses {
		if status == domain.ReceiptConfirmed || status == domain.ReceiptFinanceConfirmed {
			return fmt.Errorf("%w: purchase order has confirmed goods receipts", store.ErrConflict)
		}
	}
	return nil
}

func CanCreateReceipt(orderStatus string) error {
	if orderStatus == domain.OrderCancelled {
		return fmt.Errorf("%w: purchase order is cancelled", store.ErrPreconditionFailed)
	}
	return nil
}

func ConfirmReceiptStore(current string) (string, error) {
	if current != domain.ReceiptDraft {
		return "", fmt.Errorf("%w: goods receipt must be DRAFT to store-confirm, got %s", store.ErrConflict, current)
	}
	return domain.ReceiptConfirmed, nil
}

// ConfirmReceiptFinance guards the finance sign-off. postedMovements is the
// number of RECEIPT rows already in the ledger for the receipt.
func ConfirmReceiptFinance(current string, orderStatus string, postedMovements int) (string, error) {
	if current == domain.ReceiptFinanceConfirmed {
		return "", fmt.Errorf("%w: goods receipt already finance-confirmed", store.ErrAlreadyFinal)
	}
	if current != domain.ReceiptConfirmed {
		return "", fmt.Errorf("%w: goods receipt must be CONFIRMED to finance-confirm, got %s", store.ErrConflict, current)
	}
	if orderStatus == domain.OrderCancelled {
		return "", fmt.Errorf("%w: purchase order is cancelled", store.ErrConflict)
	}
	if postedMovements > 0 {
		return "", fmt.Errorf("%w: inventory already posted for goods receipt", store.ErrConflict)
	}
	return domain.ReceiptFinanceConfirmed, nil
}

func CanCreateInvoice(receiptStatus string, hasInvoice bool) error {
	if receiptStatus != domain.ReceiptFinanceConfirmed {
		return fmt.Errorf("%w: goods receipt must be FINANCE_CONFIRMED, got %s", store.ErrPreconditionFailed, receiptStatus)
	}
	if hasInvoice {
		return fmt.Errorf("%w: goods receipt already has an invoice", store.ErrConflict)
	}
	return nil
}

func CanEvaluateInvoice(current string) error {
	switch current {
	case domain.InvoiceDraft, domain.InvoiceMatched, domain.InvoiceDiscrepancy:
		return nil
	case domain.InvoiceApprovedForPayment:
		return fmt.Errorf("%w: invoice already approved for payment", store.ErrAlreadyFinal)
	}
	return fmt.Errorf("%w: invoice cannot be evaluated from %s", store.ErrInvalidTransition, current)
}

// EvaluatedInvoice returns the status and notes after a match evaluation.
func EvaluatedInvoice(notes string, isMatch bool) (string, string) {
	if isMatch {
		return domain.InvoiceMatched, notes
	}
	if notes == "" {
		return domain.InvoiceDiscrepancy, DiscrepancyNote
	}
	return domain.InvoiceDiscrepancy, notes + "\n" + DiscrepancyNote
}

func ApproveInvoice(current string) (string, error) {
	switch current {
	case domain.InvoiceMatched:
		return domain.InvoiceApprovedForPayment, nil
	case domain.InvoiceApprovedForPayment:
		return "", fmt.Errorf("%w: invoice already approved for payment", store.ErrAlreadyFinal)
	}
	return "", fmt.Errorf("%w: invoice must be MATCHED to approve, got %s", store.ErrInvalidTransition, current)
}

func CanCreatePayment(invoiceStatus string, isMatch bool) error {
	if invoiceStatus != domain.InvoiceApprovedForPayment {
		return fmt.Errorf("%w: invoice must be APPROVED_FOR_PAYMENT, got %s", store.ErrPreconditionFailed, invoiceStatus)
	}
	if !isMatch {
		return fmt.Errorf("%w: invoice no longer matches order and receipt", store.ErrPreconditionFailed)
	}
	return nil
}

func NextPaymentStatus(current string, action string) (string, error) {
	switch action {
	case ActionSchedule:
		if current == domain.PaymentPending {
			return domain.PaymentScheduled, nil
		}
	case ActionMarkPaid:
		if current == domain.PaymentPending || current == domain.PaymentScheduled {
			return domain.PaymentPaid, nil
		}
	case ActionCancel:
		switch current {
		case domain.PaymentPending, domain.PaymentScheduled:
			return domain.PaymentCancelled, nil
		case domain.PaymentPaid:
			return "", fmt.Errorf("%w: paid payment cannot be cancelled", store.ErrConflict)
		case domain.PaymentCancelled:
			return "", fmt.Errorf("%w: payment already cancelled", store.ErrAlreadyFinal)
		}
	}
	return "", fmt.Errorf("%w: payment cannot %s from %s", store.ErrInvalidTransition, action, current)
}

// DeriveOrderStatus computes an order's receiving status from ordered and
// finance-confirmed received quantities per item. Received items that are
// not on the order do not count.
func DeriveOrderStatus(ordered map[int64]float64, received map[int64]float64) string {
	anyReceived := false
	for itemID := range ordered {
		if received[itemID] > 0 {
			anyReceived = true
			break
		}
	}
	if !anyReceived {
		return domain.OrderIssued
	}
	for itemID, qty := range ordered {
		if received[itemID] < qty {
			return domain.OrderPartiallyReceived
		}
	}
	return domain.OrderFullyReceived
}

func CanConfirmPettyCash(current string, postedMovements int) (bool, error) {
	if postedMovements > 0 {
		return false, fmt.Errorf("%w: inventory already posted for petty cash", store.ErrConflict)
	}
	if current == domain.PettyCashPosted {
		return false, nil
	}
	if current != domain.PettyCashPending {
		return false, fmt.Errorf("%w: petty cash must be PENDING, got %s", store.ErrConflict, current)
	}
	return true, nil
}

// CanConfirmPortioning reports whether the batch still needs posting. A
// CONFIRMED batch is returned as-is by callers.
func CanConfirmPortioning(current string, postedMovements int) (bool, error) {
	if current == domain.PortioningConfirmed {
		return false, nil
	}
	if postedMovements > 0 {
		return false, fmt.Errorf("%w: inventory already posted for portioning batch", store.ErrConflict)
	}
	if current != domain.PortioningDraft {
		return false, fmt.Errorf("%w: portioning batch must be DRAFT, got %s", store.ErrConflict, current)
	}
	return true, nil
}
