package domain

import "time"

const (
	RoleCEO             = "ceo"
	RoleBranchManager   = "branch_manager"
	RoleProcurementHead = "procurement_head"
	RoleFinance         = "finance"
	RoleStoreManager    = "store_manager"
	RoleDepartmentHead  = "department_head"
	RoleDepartmentStaff = "department_staff"
)

const (
	RequisitionPending  = "PENDING"
	RequisitionReviewed = "REVIEWED"
	RequisitionApproved = "APPROVED"
	RequisitionRejected = "REJECTED"

	OrderIssued            = "ISSUED"
	OrderPartiallyReceived = "PARTIALLY_RECEIVED"
	OrderFullyReceived     = "FULLY_RECEIVED"
	OrderCancelled         = "CANCELLED"

	ReceiptDraft            = "DRAFT"
	ReceiptConfirmed        = "CONFIRMED"
	ReceiptFinanceConfirmed = "FINANCE_CONFIRMED"

	InvoiceDraft              = "DRAFT"
	InvoiceMatched            = "MATCHED"
	InvoiceDiscrepancy        = "DISCREPANCY"
	InvoiceApprovedForPayment = "APPROVED_FOR_PAYMENT"

	PaymentPending   = "PENDING"
	PaymentScheduled = "SCHEDULED"
	PaymentPaid      = "PAID"
	PaymentCancelled = "CANCELLED"

	PettyCashPending = "PENDING"
	PettyCashPosted  = "POSTED"

	PortioningDraft     = "DRAFT"
	PortioningConfirmed = "CONFIRMED"
)

const (
	MovementReceipt    = "RECEIPT"
	MovementIssue      = "ISSUE"
	MovementTransfer   = "TRANSFER"
	MovementAdjustment = "ADJUSTMENT"
	MovementPortioning = "PORTIONING"

	MovementPosted = "POSTED"
)

type Actor struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	LocationID   int64  `json:"location_id,omitempty"`
	DepartmentID int64  `json:"department_id,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserAccount struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Password     string    `json:"-"`
	Role         string    `json:"role"`
	LocationID   int64     `json:"location_id,omitempty"`
	DepartmentID int64     `json:"department_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username     string `json:"username" validate:"required,min=4"`
	Password     string `json:"password" validate:"required,min=8"`
	Role         string `json:"role" validate:"required"`
	LocationID   int64  `json:"location_id" validate:"gte=0"`
	DepartmentID int64  `json:"department_id" validate:"gte=0"`
}

type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Department struct {
	ID         int64  `json:"id"`
	LocationID int64  `json:"location_id"`
	Name       string `json:"name"`
}

type Vendor struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	PaymentTerms string    `json:"payment_terms"`
	CreatedAt    time.Time `json:"created_at"`
}

type VendorCreateRequest struct {
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone"`
	PaymentTerms string `json:"payment_terms" validate:"required"`
}

type Item struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	IsCOGS    bool      `json:"is_cogs"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

type ItemCreateRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Unit     string `json:"unit" validate:"required"`
	IsCOGS   bool   `json:"is_cogs"`
	Category string `json:"category" validate:"required"`
}

type Requisition struct {
	ID           int64             `json:"id"`
	LocationID   int64             `json:"location_id"`
	DepartmentID int64             `json:"department_id"`
	RequestedBy  int64             `json:"requested_by"`
	Status       string            `json:"status"`
	Notes        string            `json:"notes"`
	Lines        []RequisitionLine `json:"lines"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type RequisitionLine struct {
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

type RequisitionCreateRequest struct {
	LocationID   int64             `json:"location_id" validate:"required,gt=0"`
	DepartmentID int64             `json:"department_id" validate:"required,gt=0"`
	Notes        string            `json:"notes"`
	Lines        []RequisitionLine `json:"lines" validate:"required,min=1,dive"`
}

type PurchaseOrder struct {
	ID                   int64               `json:"id"`
	LocationID           int64               `json:"location_id"`
	VendorID             int64               `json:"vendor_id"`
	RequisitionID        int64               `json:"requisition_id"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date,omitempty"`
	Status               string              `json:"status"`
	CreatedBy            int64               `json:"created_by"`
	Lines                []PurchaseOrderLine `json:"lines"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

type PurchaseOrderLine struct {
	ItemID     int64   `json:"item_id" validate:"required,gt=0"`
	OrderedQty float64 `json:"ordered_qty" validate:"gt=0"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0"`
}

type PurchaseOrderCreateRequest struct {
	RequisitionID        int64               `json:"requisition_id" validate:"required,gt=0"`
	VendorID             int64               `json:"vendor_id" validate:"required,gt=0"`
	ExpectedDeliveryDate string              `json:"expected_delivery_date" validate:"omitempty,datetime=2006-01-02"`
	Lines                []PurchaseOrderLine `json:"lines" validate:"required,min=1,dive"`
}

type PurchaseOrderCancelRequest struct {
	Reason string `json:"reason"`
}

type GoodsReceipt struct {
	ID                   int64              `json:"id"`
	LocationID           int64              `json:"location_id"`
	PurchaseOrderID      int64              `json:"purchase_order_id"`
	Status               string             `json:"status"`
	StoreSignedBy        *int64             `json:"store_signed_by,omitempty"`
	DeliverySignedByName string             `json:"delivery_signed_by_name"`
	FinanceSignedBy      *int64             `json:"finance_signed_by,omitempty"`
	Notes                string             `json:"notes"`
	CreatedBy            int64              `json:"created_by"`
	Lines                []GoodsReceiptLine `json:"lines"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type GoodsReceiptLine struct {
	ItemID      int64   `json:"item_id" validate:"required,gt=0"`
	ReceivedQty float64 `json:"received_qty" validate:"gte=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type GoodsReceiptCreateRequest struct {
	PurchaseOrderID      int64              `json:"purchase_order_id" validate:"required,gt=0"`
	DeliverySignedByName string             `json:"delivery_signed_by_name"`
	Notes                string             `json:"notes"`
	Lines                []GoodsReceiptLine `json:"lines" validate:"required,min=1,dive"`
}

type Invoice struct {
	ID                  int64         `json:"id"`
	LocationID          int64         `json:"location_id"`
	GoodsReceiptID      int64         `json:"goods_receipt_id"`
	VendorInvoiceNumber string        `json:"vendor_invoice_number"`
	Status              string        `json:"status"`
	Notes               string        `json:"notes"`
	CreatedBy           int64         `json:"created_by"`
	Lines               []InvoiceLine `json:"lines"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// InvoiceLine carries the vendor's stated line total so it can be checked
// against billed_qty x unit_price during reconciliation.
type InvoiceLine struct {
	ItemID    int64   `json:"item_id"`
	BilledQty float64 `json:"billed_qty"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type InvoiceLineInput struct {
	ItemID    int64    `json:"item_id" validate:"required,gt=0"`
	BilledQty float64  `json:"billed_qty" validate:"gte=0"`
	UnitPrice float64  `json:"unit_price" validate:"gte=0"`
	LineTotal *float64 `json:"line_total,omitempty" validate:"omitempty,gte=0"`
}

type InvoiceCreateRequest struct {
	GoodsReceiptID      int64              `json:"goods_receipt_id" validate:"required,gt=0"`
	VendorInvoiceNumber string             `json:"vendor_invoice_number" validate:"required"`
	Notes               string             `json:"notes"`
	Lines               []InvoiceLineInput `json:"lines" validate:"required,min=1,dive"`
}

type Payment struct {
	ID         int64     `json:"id"`
	LocationID int64     `json:"location_id"`
	InvoiceID  int64     `json:"invoice_id"`
	Status     string    `json:"status"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	Reference  string    `json:"reference"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PaymentCreateRequest struct {
	InvoiceID int64   `json:"invoice_id" validate:"required,gt=0"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	Method    string  `json:"method"`
	Reference string  `json:"reference"`
}

type InvoiceBalance struct {
	InvoiceID    int64   `json:"invoice_id"`
	InvoiceTotal float64 `json:"invoice_total"`
	PaidTotal    float64 `json:"paid_total"`
	Outstanding  float64 `json:"outstanding"`
}

type InvoiceAging struct {
	InvoiceID       int64  `json:"invoice_id"`
	VendorID        *int64 `json:"vendor_id"`
	TermsDays       *int   `json:"terms_days"`
	DaysOutstanding int    `json:"days_outstanding"`
	IsOverdue       bool   `json:"is_overdue"`
}

type InventoryMovement struct {
	ID                 int64     `json:"id"`
	LocationID         int64     `json:"location_id"`
	ItemID             int64     `json:"item_id"`
	MovementType       string    `json:"movement_type"`
	Quantity           float64   `json:"quantity"`
	UnitCost           float64   `json:"unit_cost"`
	Status             string    `json:"status"`
	SourceDocumentType string    `json:"source_document_type"`
	SourceDocumentID   int64     `json:"source_document_id"`
	GoodsReceiptID     *int64    `json:"goods_receipt_id,omitempty"`
	RequisitionID      *int64    `json:"requisition_id,omitempty"`
	CreatedBy          int64     `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
}

type StockLevel struct {
	LocationID int64   `json:"location_id"`
	ItemID     int64   `json:"item_id"`
	OnHand     float64 `json:"on_hand"`
	Available  float64 `json:"available"`
}

type LocationStock struct {
	LocationID int64   `json:"location_id"`
	OnHand     float64 `json:"on_hand"`
}

type PriceObservation struct {
	ID                 int64     `json:"id"`
	LocationID         int64     `json:"location_id"`
	VendorID           *int64    `json:"vendor_id"`
	ItemID             int64     `json:"item_id"`
	UnitPrice          float64   `json:"unit_price"`
	Quantity           float64   `json:"quantity"`
	SourceDocumentType string    `json:"source_document_type"`
	SourceDocumentID   int64     `json:"source_document_id"`
	GoodsReceiptID     *int64    `json:"goods_receipt_id,omitempty"`
	CreatedBy          int64     `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
}

type PriceAlert struct {
	ID                int64     `json:"id"`
	LocationID        int64     `json:"location_id"`
	VendorID          *int64    `json:"vendor_id"`
	ItemID            int64     `json:"item_id"`
	ObservationID     int64     `json:"observation_id"`
	Status            string    `json:"status"`
	Severity          string    `json:"severity"`
	ThresholdPct      float64   `json:"threshold_pct"`
	BaselineUnitPrice float64   `json:"baseline_unit_price"`
	ObservedUnitPrice float64   `json:"observed_unit_price"`
	PctChange         float64   `json:"pct_change"`
	Reason            string    `json:"reason"`
	CreatedBy         int64     `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

type VendorOutlier struct {
	ItemID            int64   `json:"item_id"`
	VendorID          int64   `json:"vendor_id"`
	LocationID        int64   `json:"location_id"`
	BaselineUnitPrice float64 `json:"baseline_unit_price"`
	ObservedUnitPrice float64 `json:"observed_unit_price"`
	PctChange         float64 `json:"pct_change"`
	ThresholdPct      float64 `json:"threshold_pct"`
	ObservationID     int64   `json:"observation_id"`
}

// FinanceConfirmation is everything a receipt finance-confirm committed in
// one transaction.
type FinanceConfirmation struct {
	ReceiptBefore GoodsReceipt        `json:"-"`
	Receipt       GoodsReceipt        `json:"goods_receipt"`
	OrderBefore   PurchaseOrder       `json:"-"`
	Order         PurchaseOrder       `json:"purchase_order"`
	Movements     []InventoryMovement `json:"movements"`
	Observations  []PriceObservation  `json:"price_observations"`
	Alerts        []PriceAlert        `json:"price_alerts"`
}

type MatchLine struct {
	ItemID    int64   `json:"item_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type MatchDocument struct {
	ID    int64       `json:"id"`
	Total float64     `json:"total"`
	Lines []MatchLine `json:"lines"`
}

type Discrepancy struct {
	Type     string     `json:"type"`
	ItemID   *int64     `json:"item_id,omitempty"`
	Order    *MatchLine `json:"lpo,omitempty"`
	Receipt  *MatchLine `json:"grn,omitempty"`
	Invoice  *MatchLine `json:"invoice,omitempty"`
	Expected float64    `json:"expected"`
	Actual   float64    `json:"actual"`
}

type MatchResult struct {
	Order         MatchDocument `json:"lpo"`
	Receipt       MatchDocument `json:"grn"`
	Invoice       MatchDocument `json:"invoice"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	IsMatch       bool          `json:"is_match"`
}

type ReceiptMatchPayload struct {
	Order   ReceiptMatchOrder   `json:"lpo"`
	Receipt ReceiptMatchReceipt `json:"grn"`
	Notes   string              `json:"notes"`
}

type ReceiptMatchOrder struct {
	ID                   int64       `json:"id"`
	Status               string      `json:"status"`
	VendorID             int64       `json:"vendor_id"`
	RequisitionID        int64       `json:"requisition_id"`
	ExpectedDeliveryDate *time.Time  `json:"expected_delivery_date,omitempty"`
	Lines                []MatchLine `json:"lines"`
	Total                float64     `json:"total"`
}

type ReceiptMatchReceipt struct {
	ID     int64       `json:"id"`
	Status string      `json:"status"`
	Lines  []MatchLine `json:"lines"`
	Total  float64     `json:"total"`
}

type PettyCash struct {
	ID          int64           `json:"id"`
	LocationID  int64           `json:"location_id"`
	TxnDate     time.Time       `json:"txn_date"`
	VendorName  string          `json:"vendor_name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Amount      float64         `json:"amount"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	CreatedBy   int64           `json:"created_by"`
	Lines       []PettyCashLine `json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type PettyCashLine struct {
	ItemID      *int64  `json:"item_id,omitempty" validate:"omitempty,gt=0"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	Amount      float64 `json:"amount" validate:"gte=0"`
}

type PettyCashCreateRequest struct {
	LocationID  int64           `json:"location_id" validate:"required,gt=0"`
	TxnDate     string          `json:"txn_date" validate:"omitempty,datetime=2006-01-02"`
	VendorName  string          `json:"vendor_name"`
	Description string          `json:"description"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	Lines       []PettyCashLine `json:"lines" validate:"required,min=1,dive"`
}

type PortioningBatch struct {
	ID         int64            `json:"id"`
	LocationID int64            `json:"location_id"`
	Status     string           `json:"status"`
	Notes      string           `json:"notes"`
	CreatedBy  int64            `json:"created_by"`
	Inputs     []PortioningLine `json:"inputs"`
	Outputs    []PortioningLine `json:"outputs"`
	Losses     []PortioningLine `json:"losses"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type PortioningLine struct {
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

type PortioningCreateRequest struct {
	LocationID int64            `json:"location_id" validate:"required,gt=0"`
	Notes      string           `json:"notes"`
	Inputs     []PortioningLine `json:"inputs" validate:"dive"`
	Outputs    []PortioningLine `json:"outputs" validate:"dive"`
	Losses     []PortioningLine `json:"losses" validate:"dive"`
}

type AuditActor struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	DepartmentID int64  `json:"department_id,omitempty"`
}

type AuditEvent struct {
	ID         string         `json:"id"`
	Actor      AuditActor     `json:"actor"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	LocationID int64          `json:"location_id"`
	Before     any            `json:"before"`
	After      any            `json:"after"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
}

type InvoiceEvaluation struct {
	Invoice Invoice     `json:"invoice"`
	Match   MatchResult `json:"match"`
}

type PaymentCreateResponse struct {
	Payment Payment        `json:"payment"`
	Balance InvoiceBalance `json:"balance"`
}

type PettyCashConfirmation struct {
	PettyCash PettyCash           `json:"petty_cash"`
	Movements []InventoryMovement `json:"movements"`
}

type PortioningConfirmation struct {
	Batch     PortioningBatch     `json:"batch"`
	Movements []InventoryMovement `json:"movements"`
}
