package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/service"
	"dapurku/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *logrus.Logger
	validate      *validator.Validate
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *logrus.Logger) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("GET /api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleListUsers, domain.RoleCEO))
	mux.HandleFunc("POST /api/v1/users", a.requireAuth(a.handleCreateUser, domain.RoleCEO))

	mux.HandleFunc("GET /api/v1/locations", a.requireAuth(a.handleLocations))
	mux.HandleFunc("GET /api/v1/locations/{id}/departments", a.requireAuth(a.handleDepartments))
	mux.HandleFunc("GET /api/v1/vendors", a.requireAuth(a.handleListVendors))
	mux.HandleFunc("POST /api/v1/vendors", a.requireAuth(a.handleCreateVendor))
	mux.HandleFunc("GET /api/v1/vendors/{id}/outliers", a.requireAuth(a.handleVendorOutliers))
	mux.HandleFunc("GET /api/v1/items", a.requireAuth(a.handleListItems))
	mux.HandleFunc("POST /api/v1/items", a.requireAuth(a.handleCreateItem))

	mux.HandleFunc("GET /api/v1/requisitions", a.requireAuth(a.handleListRequisitions))
	mux.HandleFunc("POST /api/v1/requisitions", a.requireAuth(a.handleCreateRequisition))
	mux.HandleFunc("GET /api/v1/requisitions/{id}", a.requireAuth(a.handleGetRequisition))
	mux.HandleFunc("POST /api/v1/requisitions/{id}/{action}", a.requireAuth(a.handleRequisitionAction))

	mux.HandleFunc("GET /api/v1/purchase-orders", a.requireAuth(a.handleListPurchaseOrders))
	mux.HandleFunc("POST /api/v1/purchase-orders", a.requireAuth(a.handleCreatePurchaseOrder))
	mux.HandleFunc("GET /api/v1/purchase-orders/{id}", a.requireAuth(a.handleGetPurchaseOrder))
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/cancel", a.requireAuth(a.handleCancelPurchaseOrder))

	mux.HandleFunc("GET /api/v1/goods-receipts", a.requireAuth(a.handleListGoodsReceipts))
	mux.HandleFunc("POST /api/v1/goods-receipts", a.requireAuth(a.handleCreateGoodsReceipt))
	mux.HandleFunc("GET /api/v1/goods-receipts/{id}", a.requireAuth(a.handleGetGoodsReceipt))
	mux.HandleFunc("POST /api/v1/goods-receipts/{id}/confirm-store", a.requireAuth(a.handleConfirmReceiptStore))
	mux.HandleFunc("POST /api/v1/goods-receipts/{id}/confirm-finance", a.requireAuth(a.handleConfirmReceiptFinance))
	mux.HandleFunc("GET /api/v1/goods-receipts/{id}/match", a.requireAuth(a.handleReceiptMatch))

	mux.HandleFunc("GET /api/v1/invoices", a.requireAuth(a.handleListInvoices))
	mux.HandleFunc("POST /api/v1/invoices", a.requireAuth(a.handleCreateInvoice))
	mux.HandleFunc("GET /api/v1/invoices/{id}", a.requireAuth(a.handleGetInvoice))
	mux.HandleFunc("POST /api/v1/invoices/{id}/evaluate-match", a.requireAuth(a.handleEvaluateInvoice))
	mux.HandleFunc("POST /api/v1/invoices/{id}/approve-for-payment", a.requireAuth(a.handleApproveInvoice))
	mux.HandleFunc("GET /api/v1/invoices/{id}/three-way-match", a.requireAuth(a.handleThreeWayMatch))
	mux.HandleFunc("GET /api/v1/invoices/{id}/balance", a.requireAuth(a.handleInvoiceBalance))
	mux.HandleFunc("GET /api/v1/invoices/{id}/aging", a.requireAuth(a.handleInvoiceAging))

	mux.HandleFunc("GET /api/v1/payments", a.requireAuth(a.handleListPayments))
	mux.HandleFunc("POST /api/v1/payments", a.requireAuth(a.handleCreatePayment))
	mux.HandleFunc("GET /api/v1/payments/{id}", a.requireAuth(a.handleGetPayment))
	mux.HandleFunc("POST /api/v1/payments/{id}/{action}", a.requireAuth(a.handlePaymentAction))

	mux.HandleFunc("GET /api/v1/petty-cash", a.requireAuth(a.handleListPettyCash))
	mux.HandleFunc("POST /api/v1/petty-cash", a.requireAuth(a.handleCreatePettyCash))
	mux.HandleFunc("GET /api/v1/petty-cash/{id}", a.requireAuth(a.handleGetPettyCash))
	mux.HandleFunc("POST /api/v1/petty-cash/{id}/confirm", a.requireAuth(a.handleConfirmPettyCash))

	mux.HandleFunc("GET /api/v1/portioning-batches", a.requireAuth(a.handleListPortioning))
	mux.HandleFunc("POST /api/v1/portioning-batches", a.requireAuth(a.handleCreatePortioning))
	mux.HandleFunc("GET /api/v1/portioning-batches/{id}", a.requireAuth(a.handleGetPortioning))
	mux.HandleFunc("POST /api/v1/portioning-batches/{id}/confirm", a.requireAuth(a.handleConfirmPortioning))

	mux.HandleFunc("GET /api/v1/inventory/on-hand", a.requireAuth(a.handleOnHand))
	mux.HandleFunc("GET /api/v1/inventory/stock-by-location", a.requireAuth(a.handleStockByLocation))
	mux.HandleFunc("GET /api/v1/inventory/movements", a.requireAuth(a.handleMovements))

	mux.HandleFunc("GET /api/v1/price-observations", a.requireAuth(a.handlePriceObservations))
	mux.HandleFunc("GET /api/v1/price-alerts", a.requireAuth(a.handlePriceAlerts))
	mux.HandleFunc("GET /api/v1/audit-events", a.requireAuth(a.handleAuditEvents))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token into an actor. Fine-grained role and
// branch checks happen in the service; roles here only gate admin routes.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"actor": actor})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := a.service.ListLocations(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (a *API) handleDepartments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	departments, err := a.service.ListDepartments(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": departments})
}

func (a *API) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := a.service.ListVendors(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
}

func (a *API) handleCreateVendor(w http.ResponseWriter, r *http.Request) {
	var req domain.VendorCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	vendor, err := a.service.CreateVendor(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"vendor": vendor})
}

func (a *API) handleVendorOutliers(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := domain.OutlierQuery{VendorID: vendorID}
	var err error
	query := r.URL.Query()
	if q.LocationID, err = queryInt64(query.Get("location_id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if raw := strings.TrimSpace(query.Get("threshold_pct")); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("invalid threshold_pct %q", raw))
			return
		}
		q.ThresholdPct = &threshold
	}
	if raw := strings.TrimSpace(query.Get("window")); raw != "" {
		window, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("invalid window %q", raw))
			return
		}
		q.Window = &window
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("invalid limit %q", raw))
			return
		}
		if q.Limit == 0 {
			writeError(w, http.StatusUnprocessableEntity, errors.New("limit must be between 1 and 1000"))
			return
		}
	}

	outliers, err := a.service.VendorOutliers(r.Context(), q)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outliers": outliers})
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := a.service.CreateItem(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (a *API) handleListRequisitions(w http.ResponseWriter, r *http.Request) {
	filter, ok := documentFilter(w, r)
	if !ok {
		return
	}
	requisitions, err := a.service.ListRequisitions(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requisitions": requisitions})
}

func (a *API) handleCreateRequisition(w http.ResponseWriter, r *http.Request) {
	var req domain.RequisitionCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	requisition, err := a.service.CreateRequisition(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"requisition": requisition})
}

func (a *API) handleGetRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	requisition, err := a.service.GetRequisition(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requisition": requisition})
}

func (a *API) handleRequisitionAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var (
		requisition domain.Requisition
		err         error
	)
	switch r.PathValue("action") {
	case "review":
		requisition, err = a.service.ReviewRequisition(r.Context(), id)
	case "reject":
		requisition, err = a.service.RejectRequisition(r.Context(), id)
	case "approve":
		requisition, err = a.service.ApproveRequisition(r.Context(), id)
	case "final-reject":
		requisition, err = a.service.FinalRejectRequisition(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown requisition action"))
		return
	}
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requisition": requisition})
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := documentFilter(w, r)
	if !ok {
		return
	}
	orders, err := a.service.ListPurchaseOrders(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	order, err := a.service.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase_order": order})
}

func (a *API) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := a.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_order": order})
}

func (a *API) handleCancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.PurchaseOrderCancelRequest
	if r.ContentLength > 0 && !a.decodeAndValidate(w, r, &req) {
		return
	}
	order, err := a.service.CancelPurchaseOrder(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_order": order})
}

func (a *API) handleListGoodsReceipts(w http.ResponseWriter, r *http.Request) {
	filter, ok := documentFilter(w, r)
	if !ok {
		return
	}
	receipts, err := a.service.ListGoodsReceipts(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goods_receipts": receipts})
}

func (a *API) handleCreateGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	var req domain.GoodsReceiptCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	receipt, err := a.service.CreateGoodsReceipt(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"goods_receipt": receipt})
}

func (a *API) handleGetGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	receipt, err := a.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goods_receipt": receipt})
}

func (a *API) handleConfirmReceiptStore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	receipt, err := a.service.ConfirmGoodsReceiptStore(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goods_receipt": receipt})
}

func (a *API) handleConfirmReceiptFinance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	confirmation, err := a.service.ConfirmGoodsReceiptFinance(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

func (a *API) handleReceiptMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payload, err := a.service.GetReceiptMatchPayload(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	filter, ok := documentFilter(w, r)
	if !ok {
		return
	}
	invoices, err := a.service.ListInvoices(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	invoice, err := a.service.CreateInvoice(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invoice, err := a.service.GetInvoice(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleEvaluateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	evaluation, err := a.service.EvaluateInvoiceMatch(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluation)
}

func (a *API) handleApproveInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invoice, err := a.service.ApproveInvoiceForPayment(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleThreeWayMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	match, err := a.service.GetThreeWayMatch(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (a *API) handleInvoiceBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := a.service.GetInvoiceBalance(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleInvoiceAging(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	aging, err := a.service.GetInvoiceAging(r.Context(), id, time.Now().UTC())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aging)
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	filter, ok := documentFilter(w, r)
	if !ok {
		return
	}
	payments, err := a.service.ListPayments(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (a *API) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := a.service.CreatePayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payment, err := a.service.GetPayment(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
}

func (a *API) handlePaymentAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var (
		payment domain.Payment
		err     error
	)
	switch r.PathValue("action") {
	case "schedule":
		payment, err = a.service.SchedulePayment(r.Context(), id)
	case "mark-paid":
		payment, err = a.service.MarkPaymentPaid(r.Context(), id)
	case "cancel":
		payment, err = a.service.CancelPayment(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown payment action"))
		return
	}
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
}

func (a *API) handleListPettyCash(w http.ResponseWriter, r *http.Request) {
	filter, ok := documentFilter(w, r)
	if !ok {
		return
	}
	entries, err := a.service.ListPettyCash(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"petty_cash": entries})
}

func (a *API) handleCreatePettyCash(w http.ResponseWriter, r *http.Request) {
	var req domain.PettyCashCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := a.service.CreatePettyCash(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"petty_cash": entry})
}

func (a *API) handleGetPettyCash(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := a.service.GetPettyCash(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"petty_cash": entry})
}

func (a *API) handleConfirmPettyCash(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	confirmation, err := a.service.ConfirmPettyCash(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

func (a *API) handleListPortioning(w http.ResponseWriter, r *http.Request) {
	filter, ok := documentFilter(w, r)
	if !ok {
		return
	}
	batches, err := a.service.ListPortioningBatches(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleCreatePortioning(w http.ResponseWriter, r *http.Request) {
	var req domain.PortioningCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	batch, err := a.service.CreatePortioningBatch(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"batch": batch})
}

func (a *API) handleGetPortioning(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	batch, err := a.service.GetPortioningBatch(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (a *API) handleConfirmPortioning(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	confirmation, err := a.service.ConfirmPortioningBatch(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

func (a *API) handleOnHand(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	locationID, err := queryInt64(query.Get("location_id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	itemID, err := queryInt64(query.Get("item_id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if locationID <= 0 || itemID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, errors.New("location_id and item_id are required"))
		return
	}
	level, err := a.service.OnHand(r.Context(), locationID, itemID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (a *API) handleStockByLocation(w http.ResponseWriter, r *http.Request) {
	itemID, err := queryInt64(r.URL.Query().Get("item_id"))
	if err != nil || itemID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, errors.New("item_id is required"))
		return
	}
	stock, err := a.service.StockByLocation(r.Context(), itemID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "locations": stock})
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	sourceID, err := queryInt64(query.Get("source_document_id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	filter := domain.MovementFilter{
		SourceDocumentType: query.Get("source_document_type"),
		SourceDocumentID:   sourceID,
		Page:               page,
	}
	if strings.TrimSpace(filter.SourceDocumentType) == "" || sourceID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, errors.New("source_document_type and source_document_id are required"))
		return
	}
	movements, err := a.service.ListMovementsBySource(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handlePriceObservations(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := domain.PriceObservationFilter{Page: page}
	var err error
	if filter.LocationID, err = queryInt64(query.Get("location_id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if filter.ItemID, err = optionalInt64(query.Get("item_id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if filter.VendorID, err = optionalInt64(query.Get("vendor_id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	observations, err := a.service.ListPriceObservations(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": observations})
}

func (a *API) handlePriceAlerts(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := domain.PriceAlertFilter{Page: page, Status: strings.ToUpper(strings.TrimSpace(query.Get("status")))}
	var err error
	if filter.LocationID, err = queryInt64(query.Get("location_id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if filter.ItemID, err = optionalInt64(query.Get("item_id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if filter.VendorID, err = optionalInt64(query.Get("vendor_id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	alerts, err := a.service.ListPriceAlerts(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return
	}
	locationID, err := queryInt64(r.URL.Query().Get("location_id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	events, err := a.service.ListAuditEvents(r.Context(), domain.AuditFilter{LocationID: locationID, Page: page})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type requestIDKey struct{}

func contextWithRequestID(r *http.Request, requestID string) context.Context {
	return context.WithValue(r.Context(), requestIDKey{}, requestID)
}

func requestIDFrom(r *http.Request) string {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	return requestID
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(recorder, r.WithContext(contextWithRequestID(r, requestID)))
		a.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     recorder.status,
			"duration":   time.Since(startedAt).String(),
		}).Info("request")
	})
}

// writeServiceError maps domain and store sentinels to HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrPreconditionFailed),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrAlreadyFinal),
		errors.Is(err, store.ErrInvalidState):
		status = http.StatusConflict
	}
	if status >= 500 {
		a.logger.WithFields(logrus.Fields{
			"request_id": requestIDFrom(r),
			"path":       r.URL.Path,
		}).WithError(err).Error("internal error")
	}
	writeError(w, status, err)
}

// decodeAndValidate writes the error response itself and reports whether
// the handler should continue.
func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			writeError(w, http.StatusBadRequest, err)
			return false
		}
		fields := make(map[string]string, len(validationErrors))
		for _, ve := range validationErrors {
			fields[ve.Namespace()] = ve.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return 0, false
	}
	return id, true
}

func queryInt64(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return v, nil
}

func optionalInt64(raw string) (*int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := queryInt64(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func pageFromQuery(w http.ResponseWriter, r *http.Request) (domain.Page, bool) {
	query := r.URL.Query()
	page := domain.Page{Limit: domain.DefaultPageLimit}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("invalid limit %q", raw))
			return domain.Page{}, false
		}
		page.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("invalid offset %q", raw))
			return domain.Page{}, false
		}
		page.Offset = offset
	}
	if err := page.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return domain.Page{}, false
	}
	return page, true
}

func documentFilter(w http.ResponseWriter, r *http.Request) (domain.DocumentFilter, bool) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return domain.DocumentFilter{}, false
	}
	locationID, err := queryInt64(r.URL.Query().Get("location_id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return domain.DocumentFilter{}, false
	}
	return domain.DocumentFilter{
		LocationID: locationID,
		Status:     strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))),
		Page:       page,
	}, true
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
