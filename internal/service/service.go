package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dapurku/backend/internal/audit"
	"dapurku/backend/internal/cache"
	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/lock"
	"dapurku/backend/internal/pricing"
	"dapurku/backend/internal/reconcile"
	"dapurku/backend/internal/store"
)

var ErrForbidden = errors.New("forbidden")

const auditTimeout = 3 * time.Second

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Policy holds the tunable thresholds of the payment and pricing checks.
type Policy struct {
	PaymentTolerance float64
	ThresholdPct     float64
	BaselineWindow   int
	OutlierCacheTTL  time.Duration
}

type Options struct {
	Audit        audit.Sink
	Locker       lock.Locker
	OutlierCache cache.OutlierCache
	Logger       *logrus.Logger
	Policy       Policy
}

type Service struct {
	repo     store.Repository
	audit    audit.Sink
	locker   lock.Locker
	outliers cache.OutlierCache
	logger   *logrus.Logger
	policy   Policy
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Audit == nil {
		opts.Audit = audit.NewRepoSink(repo)
	}
	if opts.Locker == nil {
		opts.Locker = lock.Noop{}
	}
	if opts.OutlierCache == nil {
		opts.OutlierCache = cache.NoopOutlierCache{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Policy.PaymentTolerance <= 0 {
		opts.Policy.PaymentTolerance = reconcile.Tolerance
	}
	if opts.Policy.ThresholdPct <= 0 {
		opts.Policy.ThresholdPct = pricing.DefaultThresholdPct
	}
	if opts.Policy.BaselineWindow < 1 {
		opts.Policy.BaselineWindow = pricing.DefaultWindow
	}
	if opts.Policy.OutlierCacheTTL <= 0 {
		opts.Policy.OutlierCacheTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		audit:    opts.Audit,
		locker:   opts.Locker,
		outliers: opts.OutlierCache,
		logger:   opts.Logger,
		policy:   opts.Policy,
	}
}

type roleSet map[string]struct{}

func roles(names ...string) roleSet {
	set := make(roleSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

var (
	anyRole = roles(
		domain.RoleCEO, domain.RoleBranchManager, domain.RoleProcurementHead, domain.RoleFinance,
		domain.RoleStoreManager, domain.RoleDepartmentHead, domain.RoleDepartmentStaff,
	)
	masterDataEditors    = roles(domain.RoleCEO, domain.RoleProcurementHead)
	requisitionCreators  = roles(domain.RoleCEO, domain.RoleBranchManager, domain.RoleDepartmentHead, domain.RoleDepartmentStaff)
	requisitionReviewers = roles(domain.RoleCEO, domain.RoleBranchManager, domain.RoleProcurementHead, domain.RoleDepartmentHead)
	requisitionApprovers = roles(domain.RoleCEO, domain.RoleBranchManager)
	orderManagers        = roles(domain.RoleCEO, domain.RoleBranchManager, domain.RoleProcurementHead)
	receivers            = roles(domain.RoleCEO, domain.RoleBranchManager, domain.RoleStoreManager)
	financeRoles         = roles(domain.RoleCEO, domain.RoleFinance)
	pettyCashCreators    = roles(domain.RoleCEO, domain.RoleBranchManager, domain.RoleFinance, domain.RoleStoreManager)
	kitchenOperators     = roles(domain.RoleCEO, domain.RoleBranchManager, domain.RoleStoreManager)
	pricingViewers       = roles(domain.RoleCEO, domain.RoleBranchManager, domain.RoleProcurementHead, domain.RoleFinance, domain.RoleStoreManager)
	auditViewers         = roles(domain.RoleCEO, domain.RoleBranchManager)
)

func (s *Service) authorize(ctx context.Context, allowed roleSet) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: missing actor", ErrForbidden)
	}
	if _, ok := allowed[actor.Role]; !ok {
		return domain.Actor{}, fmt.Errorf("%w: role %s", ErrForbidden, actor.Role)
	}
	return actor, nil
}

func canAccessLocation(actor domain.Actor, locationID int64) bool {
	if actor.Role == domain.RoleCEO {
		return true
	}
	return actor.LocationID > 0 && actor.LocationID == locationID
}

func requireLocation(actor domain.Actor, locationID int64) error {
	if !canAccessLocation(actor, locationID) {
		return fmt.Errorf("%w: location %d", ErrForbidden, locationID)
	}
	return nil
}

// scopeFilter pins a listing to the actor's branch. Only the ceo may list
// every location at once.
func scopeFilter(actor domain.Actor, locationID int64) (int64, error) {
	if actor.Role == domain.RoleCEO {
		return locationID, nil
	}
	if locationID == 0 {
		return actor.LocationID, nil
	}
	if err := requireLocation(actor, locationID); err != nil {
		return 0, err
	}
	return locationID, nil
}

// requiredLocation is scopeFilter for queries that must name one location.
func requiredLocation(actor domain.Actor, locationID int64) (int64, error) {
	scoped, err := scopeFilter(actor, locationID)
	if err != nil {
		return 0, err
	}
	if scoped <= 0 {
		return 0, fmt.Errorf("%w: location_id is required", store.ErrValidation)
	}
	return scoped, nil
}

func (s *Service) withDocumentLock(ctx context.Context, kind string, id int64, fn func(ctx context.Context) error) error {
	return s.locker.WithLock(ctx, lock.DocumentKey(kind, id), fn)
}

// emit hands an event to the audit sink once the transition has committed.
// Delivery failures are logged and dropped.
func (s *Service) emit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID int64, locationID int64, before any, after any, payload map[string]any) {
	event := audit.NewEvent(actor, action, entityType, entityID, locationID, before, after, payload)

	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.audit.Emit(emitCtx, event); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action":      action,
			"entity_type": entityType,
			"entity_id":   entityID,
			"event_id":    event.ID,
		}).WithError(err).Warn("audit delivery dropped")
	}
}

func (s *Service) pricePolicy() domain.PricePolicy {
	return domain.PricePolicy{ThresholdPct: s.policy.ThresholdPct, Window: s.policy.BaselineWindow}
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return nil, err
	}
	locations, err := s.repo.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]domain.Location, 0, len(locations))
	for _, loc := range locations {
		if canAccessLocation(actor, loc.ID) {
			visible = append(visible, loc)
		}
	}
	return visible, nil
}

func (s *Service) ListDepartments(ctx context.Context, locationID int64) ([]domain.Department, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return nil, err
	}
	if err := requireLocation(actor, locationID); err != nil {
		return nil, err
	}
	return s.repo.ListDepartments(ctx, locationID)
}

func (s *Service) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	if _, err := s.authorize(ctx, anyRole); err != nil {
		return nil, err
	}
	return s.repo.ListVendors(ctx)
}

func (s *Service) CreateVendor(ctx context.Context, req domain.VendorCreateRequest) (domain.Vendor, error) {
	if _, err := s.authorize(ctx, masterDataEditors); err != nil {
		return domain.Vendor{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Vendor{}, fmt.Errorf("%w: vendor name is required", store.ErrValidation)
	}
	created, err := s.repo.CreateVendor(ctx, domain.Vendor{
		Name:         req.Name,
		Phone:        strings.TrimSpace(req.Phone),
		PaymentTerms: strings.ToUpper(strings.TrimSpace(req.PaymentTerms)),
	})
	if err != nil {
		return domain.Vendor{}, err
	}
	return *created, nil
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	if _, err := s.authorize(ctx, anyRole); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	if _, err := s.authorize(ctx, masterDataEditors); err != nil {
		return domain.Item{}, err
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" || strings.TrimSpace(req.Unit) == "" {
		return domain.Item{}, fmt.Errorf("%w: sku, name and unit are required", store.ErrValidation)
	}
	created, err := s.repo.CreateItem(ctx, domain.Item{
		SKU:      req.SKU,
		Name:     req.Name,
		Unit:     strings.TrimSpace(req.Unit),
		IsCOGS:   req.IsCOGS,
		Category: strings.TrimSpace(req.Category),
	})
	if err != nil {
		return domain.Item{}, err
	}
	return *created, nil
}

func (s *Service) ListAuditEvents(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	actor, err := s.authorize(ctx, auditViewers)
	if err != nil {
		return nil, err
	}
	filter.LocationID, err = scopeFilter(actor, filter.LocationID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditEvents(ctx, filter)
}

func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}
	return &parsed, nil
}
