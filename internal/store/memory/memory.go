package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

// Store keeps every table in maps guarded by one mutex. Each mutating
// method validates and computes everything before it writes, so a failed
// call leaves no partial state behind.
type Store struct {
	mu              sync.RWMutex
	seq             map[string]int64
	now             func() time.Time
	locations       map[int64]domain.Location
	departments     map[int64]domain.Department
	vendors         map[int64]domain.Vendor
	items           map[int64]domain.Item
	usersByUsername map[string]domain.UserAccount
	requisitions    map[int64]domain.Requisition
	orders          map[int64]domain.PurchaseOrder
	receipts        map[int64]domain.GoodsReceipt
	invoices        map[int64]domain.Invoice
	payments        map[int64]domain.Payment
	pettyCash       map[int64]domain.PettyCash
	portioning      map[int64]domain.PortioningBatch
	movements       []domain.InventoryMovement
	observations    []domain.PriceObservation
	alerts          []domain.PriceAlert
	auditEvents     []domain.AuditEvent
}

func New() *Store {
	return &Store{
		seq:             make(map[string]int64),
		now:             func() time.Time { return time.Now().UTC() },
		locations:       make(map[int64]domain.Location),
		departments:     make(map[int64]domain.Department),
		vendors:         make(map[int64]domain.Vendor),
		items:           make(map[int64]domain.Item),
		usersByUsername: make(map[string]domain.UserAccount),
		requisitions:    make(map[int64]domain.Requisition),
		orders:          make(map[int64]domain.PurchaseOrder),
		receipts:        make(map[int64]domain.GoodsReceipt),
		invoices:        make(map[int64]domain.Invoice),
		payments:        make(map[int64]domain.Payment),
		pettyCash:       make(map[int64]domain.PettyCash),
		portioning:      make(map[int64]domain.PortioningBatch),
		movements:       make([]domain.InventoryMovement, 0, 128),
		observations:    make([]domain.PriceObservation, 0, 64),
		alerts:          make([]domain.PriceAlert, 0, 16),
		auditEvents:     make([]domain.AuditEvent, 0, 128),
	}
}

// seedUsers builds one account per role for dev/demo mode. The shared
// password comes from SEED_PASSWORD; without it a dev default is used and a
// warning is printed. Production runs on PostgreSQL when DATABASE_URL is set.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	password := envOr("SEED_PASSWORD", "dapurku123")
	if os.Getenv("SEED_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	users := map[string]domain.UserAccount{}
	for idx, u := range []struct {
		username   string
		role       string
		location   int64
		department int64
	}{
		{"ceo", domain.RoleCEO, 0, 0},
		{"manager.jkt", domain.RoleBranchManager, 1, 0},
		{"procurement", domain.RoleProcurementHead, 1, 0},
		{"finance", domain.RoleFinance, 1, 0},
		{"store.jkt", domain.RoleStoreManager, 1, 0},
		{"kitchen.head", domain.RoleDepartmentHead, 1, 1},
		{"kitchen.staff", domain.RoleDepartmentStaff, 1, 1},
		{"manager.bdg", domain.RoleBranchManager, 2, 0},
	} {
		users[u.username] = domain.UserAccount{
			ID:           int64(idx + 1),
			Username:     u.username,
			Password:     string(hash),
			Role:         u.role,
			LocationID:   u.location,
			DepartmentID: u.department,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := s.now()

	for _, loc := range []domain.Location{
		{ID: 1, Code: "JKT-01", Name: "Dapurku Kemang"},
		{ID: 2, Code: "BDG-01", Name: "Dapurku Dago"},
	} {
		loc.Active = true
		loc.CreatedAt = now
		s.locations[loc.ID] = loc
	}
	s.seq["locations"] = 2

	for _, dept := range []domain.Department{
		{ID: 1, LocationID: 1, Name: "Kitchen"},
		{ID: 2, LocationID: 1, Name: "Bar"},
		{ID: 3, LocationID: 2, Name: "Kitchen"},
	} {
		s.departments[dept.ID] = dept
	}
	s.seq["departments"] = 3

	for _, v := range []domain.Vendor{
		{ID: 1, Name: "CV Sumber Segar", Phone: "021-7180001", PaymentTerms: "NET30"},
		{ID: 2, Name: "Pasar Induk Kramat Jati", PaymentTerms: "CASH"},
	} {
		v.CreatedAt = now
		s.vendors[v.ID] = v
	}
	s.seq["vendors"] = 2

	for _, item := range []domain.Item{
		{ID: 1, SKU: "RAW-BEEF-01", Name: "Daging Sapi", Unit: "kg", IsCOGS: true, Category: "protein"},
		{ID: 2, SKU: "RAW-CHKN-01", Name: "Ayam Fillet", Unit: "kg", IsCOGS: true, Category: "protein"},
		{ID: 3, SKU: "RAW-RICE-01", Name: "Beras", Unit: "kg", IsCOGS: true, Category: "dry"},
		{ID: 4, SKU: "RAW-OIL-01", Name: "Minyak Goreng", Unit: "liter", IsCOGS: true, Category: "dry"},
		{ID: 5, SKU: "PRT-RNDG-01", Name: "Porsi Rendang", Unit: "portion", IsCOGS: true, Category: "prepared"},
		{ID: 6, SKU: "RAW-SHAL-01", Name: "Bawang Merah", Unit: "kg", IsCOGS: true, Category: "produce"},
		{ID: 7, SKU: "RAW-COCO-01", Name: "Santan Kelapa", Unit: "liter", IsCOGS: true, Category: "produce"},
		{ID: 8, SKU: "SUP-SOAP-01", Name: "Sabun Cuci Piring", Unit: "bottle", IsCOGS: false, Category: "supplies"},
	} {
		item.CreatedAt = now
		s.items[item.ID] = item
	}
	s.seq["items"] = 8

	s.usersByUsername = seedUsers(now)
	s.seq["users"] = int64(len(s.usersByUsername))
	return s
}

func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) ListLocations(_ context.Context) ([]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		result = append(result, loc)
	}
	slices.SortFunc(result, func(a, b domain.Location) int { return cmpID(a.ID, b.ID) })
	return result, nil
}

func (s *Store) GetLocation(_ context.Context, id int64) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &loc, nil
}

func (s *Store) ListDepartments(_ context.Context, locationID int64) ([]domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Department, 0, len(s.departments))
	for _, dept := range s.departments {
		if locationID > 0 && dept.LocationID != locationID {
			continue
		}
		result = append(result, dept)
	}
	slices.SortFunc(result, func(a, b domain.Department) int { return cmpID(a.ID, b.ID) })
	return result, nil
}

func (s *Store) CreateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vendor.Name = strings.TrimSpace(vendor.Name)
	if vendor.Name == "" {
		return nil, fmt.Errorf("%w: vendor name is required", store.ErrValidation)
	}
	vendor.ID = s.nextID("vendors")
	vendor.CreatedAt = s.now()
	s.vendors[vendor.ID] = vendor
	return &vendor, nil
}

func (s *Store) GetVendor(_ context.Context, id int64) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, ok := s.vendors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &vendor, nil
}

func (s *Store) ListVendors(_ context.Context) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		result = append(result, v)
	}
	slices.SortFunc(result, func(a, b domain.Vendor) int { return cmpString(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
	if item.SKU == "" || strings.TrimSpace(item.Name) == "" {
		return nil, fmt.Errorf("%w: item sku and name are required", store.ErrValidation)
	}
	for _, existing := range s.items {
		if existing.SKU == item.SKU {
			return nil, fmt.Errorf("%w: item sku %s already exists", store.ErrConflict, item.SKU)
		}
	}
	item.ID = s.nextID("items")
	item.CreatedAt = s.now()
	s.items[item.ID] = item
	return &item, nil
}

func (s *Store) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, item)
	}
	slices.SortFunc(result, func(a, b domain.Item) int { return cmpID(a.ID, b.ID) })
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrConflict)
	}
	user.ID = s.nextID("users")
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleDepartmentStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateAuditEvent(_ context.Context, event domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	s.auditEvents = append(s.auditEvents, event)
	return nil
}

func (s *Store) ListAuditEvents(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditEvent, 0, len(s.auditEvents))
	for i := len(s.auditEvents) - 1; i >= 0; i-- {
		event := s.auditEvents[i]
		if filter.LocationID > 0 && event.LocationID != filter.LocationID {
			continue
		}
		result = append(result, event)
	}
	return paginate(result, filter.Page), nil
}

func (s *Store) requireItems(itemIDs []int64) error {
	for _, id := range itemIDs {
		if _, ok := s.items[id]; !ok {
			return fmt.Errorf("%w: item %d", store.ErrNotFound, id)
		}
	}
	return nil
}

func (s *Store) requireLocation(id int64) error {
	if _, ok := s.locations[id]; !ok {
		return fmt.Errorf("%w: location %d", store.ErrNotFound, id)
	}
	return nil
}

func paginate[T any](rows []T, page domain.Page) []T {
	if page.Offset >= len(rows) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if page.Limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[page.Offset:end]
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

func cmpID(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func idPtr(v int64) *int64 {
	return &v
}
