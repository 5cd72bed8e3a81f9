package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// inTx runs fn in a serializable transaction. Serialization failures and
// constraint violations come back as store errors.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit())
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, active, created_at
		FROM locations
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 8)
	for rows.Next() {
		var loc domain.Location
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Active, &loc.CreatedAt); err != nil {
			return nil, err
		}
		loc.CreatedAt = loc.CreatedAt.UTC()
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (s *Store) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	var loc domain.Location
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, active, created_at
		FROM locations
		WHERE id = $1
	`, id).Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Active, &loc.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	loc.CreatedAt = loc.CreatedAt.UTC()
	return &loc, nil
}

func (s *Store) ListDepartments(ctx context.Context, locationID int64) ([]domain.Department, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, name
		FROM departments
		WHERE ($1 = 0 OR location_id = $1)
		ORDER BY id ASC
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	departments := make([]domain.Department, 0, 8)
	for rows.Next() {
		var dept domain.Department
		if err := rows.Scan(&dept.ID, &dept.LocationID, &dept.Name); err != nil {
			return nil, err
		}
		departments = append(departments, dept)
	}
	return departments, rows.Err()
}

func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	vendor.Name = strings.TrimSpace(vendor.Name)
	if vendor.Name == "" {
		return nil, fmt.Errorf("%w: vendor name is required", store.ErrValidation)
	}
	vendor.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vendors (name, phone, payment_terms, created_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, vendor.Name, nullIfEmpty(vendor.Phone), vendor.PaymentTerms, vendor.CreatedAt).Scan(&vendor.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return &vendor, nil
}

func (s *Store) GetVendor(ctx context.Context, id int64) (*domain.Vendor, error) {
	var v domain.Vendor
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, payment_terms, created_at
		FROM vendors
		WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &phone, &v.PaymentTerms, &v.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	v.Phone = phone.String
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, payment_terms, created_at
		FROM vendors
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0, 16)
	for rows.Next() {
		var v domain.Vendor
		var phone sql.NullString
		if err := rows.Scan(&v.ID, &v.Name, &phone, &v.PaymentTerms, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Phone = phone.String
		v.CreatedAt = v.CreatedAt.UTC()
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
	if item.SKU == "" || strings.TrimSpace(item.Name) == "" {
		return nil, fmt.Errorf("%w: item sku and name are required", store.ErrValidation)
	}
	item.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO items (sku, name, unit, is_cogs, category, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, item.SKU, item.Name, item.Unit, item.IsCOGS, item.Category, item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return &item, nil
}

func (s *Store) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q queryer, id int64) (*domain.Item, error) {
	var item domain.Item
	err := q.QueryRowContext(ctx, `
		SELECT id, sku, name, unit, is_cogs, category, created_at
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.SKU, &item.Name, &item.Unit, &item.IsCOGS, &item.Category, &item.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, unit, is_cogs, category, created_at
		FROM items
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &item.Unit, &item.IsCOGS, &item.Category, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}
	if user.Role == "" {
		user.Role = domain.RoleDepartmentStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, location_id, department_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,true,$6,now())
	`, user.Username, user.Password, user.Role, nullID(user.LocationID), nullID(user.DepartmentID), user.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, location_id, department_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var locationID, departmentID sql.NullInt64
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &locationID, &departmentID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.LocationID = locationID.Int64
		user.DepartmentID = departmentID.Int64
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	actor, err := json.Marshal(event.Actor)
	if err != nil {
		return err
	}
	before, err := json.Marshal(event.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(event.After)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor, action, entity_type, entity_id, location_id, before_state, after_state, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, event.ID, actor, event.Action, event.EntityType, event.EntityID, event.LocationID, before, after, payload, event.Timestamp)
	return mapError(err)
}

func (s *Store) ListAuditEvents(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, location_id, before_state, after_state, payload, created_at
		FROM audit_events
		WHERE ($1 = 0 OR location_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, filter.LocationID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0, filter.Limit)
	for rows.Next() {
		var event domain.AuditEvent
		var actor, before, after, payload []byte
		if err := rows.Scan(&event.ID, &actor, &event.Action, &event.EntityType, &event.EntityID, &event.LocationID, &before, &after, &payload, &event.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actor, &event.Actor); err != nil {
			return nil, err
		}
		event.Before = rawJSON(before)
		event.After = rawJSON(after)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, err
			}
		}
		event.Timestamp = event.Timestamp.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

// mapError converts driver errors into the store taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		case "40001", "40P01":
			return fmt.Errorf("%w: concurrent update, retry", store.ErrConflict)
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.ConstraintName)
		case "23514":
			return fmt.Errorf("%w: %s", store.ErrValidation, pgErr.ConstraintName)
		}
	}
	return err
}

func rawJSON(b []byte) any {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.RawMessage(b)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullID(val int64) any {
	if val <= 0 {
		return nil
	}
	return val
}

func nullIDPtr(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func ptrFromNull(val sql.NullInt64) *int64 {
	if !val.Valid {
		return nil
	}
	v := val.Int64
	return &v
}

func pageArgs(page domain.Page) (int, int) {
	return page.Limit, page.Offset
}
