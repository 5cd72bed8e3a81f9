package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/ledger"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/workflow"
)

const movementColumns = `id, location_id, item_id, movement_type, quantity, unit_cost, status,
	source_document_type, source_document_id, goods_receipt_id, requisition_id, created_by, created_at`

const observationColumns = `id, location_id, vendor_id, item_id, unit_price, quantity,
	source_document_type, source_document_id, goods_receipt_id, created_by, created_at`

func (s *Store) OnHand(ctx context.Context, locationID int64, itemID int64) (float64, error) {
	qty, err := onHand(ctx, s.db, locationID, itemID)
	return qty, mapError(err)
}

func (s *Store) StockByLocation(ctx context.Context, itemID int64) ([]domain.LocationStock, error) {
	if _, err := getItem(ctx, s.db, itemID); err != nil {
		return nil, mapError(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, COALESCE(SUM(m.quantity), 0)
		FROM locations l
		LEFT JOIN inventory_movements m
			ON m.location_id = l.id AND m.item_id = $1 AND m.status = $2
		GROUP BY l.id
		ORDER BY l.id ASC
	`, itemID, domain.MovementPosted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.LocationStock, 0, 4)
	for rows.Next() {
		var stock domain.LocationStock
		if err := rows.Scan(&stock.LocationID, &stock.OnHand); err != nil {
			return nil, err
		}
		result = append(result, stock)
	}
	return result, rows.Err()
}

func (s *Store) ListMovementsBySource(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	limit, offset := pageArgs(filter.Page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+movementColumns+`
		FROM inventory_movements
		WHERE source_document_type = $1 AND source_document_id = $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`, strings.ToUpper(strings.TrimSpace(filter.SourceDocumentType)), filter.SourceDocumentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.InventoryMovement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) ListPriceObservations(ctx context.Context, filter domain.PriceObservationFilter) ([]domain.PriceObservation, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	limit, offset := pageArgs(filter.Page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observationColumns+`
		FROM price_observations
		WHERE location_id = $1
			AND ($2::BIGINT IS NULL OR item_id = $2)
			AND ($3::BIGINT IS NULL OR vendor_id = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, filter.LocationID, nullIDPtr(filter.ItemID), nullIDPtr(filter.VendorID), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

func (s *Store) ListPriceAlerts(ctx context.Context, filter domain.PriceAlertFilter) ([]domain.PriceAlert, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	limit, offset := pageArgs(filter.Page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, vendor_id, item_id, observation_id, status, severity, threshold_pct,
			baseline_unit_price, observed_unit_price, pct_change, reason, created_by, created_at
		FROM price_alerts
		WHERE location_id = $1
			AND ($2 = '' OR status = $2)
			AND ($3::BIGINT IS NULL OR item_id = $3)
			AND ($4::BIGINT IS NULL OR vendor_id = $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5 OFFSET $6
	`, filter.LocationID, strings.ToUpper(strings.TrimSpace(filter.Status)), nullIDPtr(filter.ItemID), nullIDPtr(filter.VendorID), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PriceAlert, 0)
	for rows.Next() {
		var alert domain.PriceAlert
		var vendorID sql.NullInt64
		if err := rows.Scan(
			&alert.ID, &alert.LocationID, &vendorID, &alert.ItemID, &alert.ObservationID, &alert.Status, &alert.Severity, &alert.ThresholdPct,
			&alert.BaselineUnitPrice, &alert.ObservedUnitPrice, &alert.PctChange, &alert.Reason, &alert.CreatedBy, &alert.CreatedAt,
		); err != nil {
			return nil, err
		}
		alert.VendorID = ptrFromNull(vendorID)
		alert.CreatedAt = alert.CreatedAt.UTC()
		result = append(result, alert)
	}
	return result, rows.Err()
}

func (s *Store) LatestObservationsByItem(ctx context.Context, locationID int64, vendorID int64) ([]domain.PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (item_id) `+observationColumns+`
		FROM price_observations
		WHERE location_id = $1 AND vendor_id = $2
		ORDER BY item_id ASC, created_at DESC, id DESC
	`, locationID, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

func (s *Store) PriorUnitPrices(ctx context.Context, obs domain.PriceObservation, window int) ([]float64, error) {
	return priorUnitPrices(ctx, s.db, obs, window)
}

func (s *Store) CreatePettyCash(ctx context.Context, pc domain.PettyCash) (*domain.PettyCash, error) {
	lines, amount, err := ledger.PettyCashAmounts(pc.Lines)
	if err != nil {
		return nil, err
	}

	var created *domain.PettyCash
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var locationID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM locations WHERE id = $1`, pc.LocationID).Scan(&locationID); err != nil {
			return err
		}
		now := time.Now().UTC()
		if pc.TxnDate.IsZero() {
			pc.TxnDate = now
		}
		if strings.TrimSpace(pc.Method) == "" {
			pc.Method = "CASH"
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO petty_cash (location_id, txn_date, vendor_name, description, status, amount, method, reference, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
			RETURNING id
		`, pc.LocationID, pc.TxnDate, pc.VendorName, pc.Description, domain.PettyCashPending, amount, pc.Method, pc.Reference, pc.CreatedBy, now).Scan(&pc.ID); err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO petty_cash_lines (petty_cash_id, item_id, description, quantity, unit_price, amount)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, pc.ID, nullIDPtr(line.ItemID), line.Description, line.Quantity, line.UnitPrice, line.Amount); err != nil {
				return err
			}
		}
		created, err = loadPettyCash(ctx, tx, pc.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetPettyCash(ctx context.Context, id int64) (*domain.PettyCash, error) {
	pc, err := loadPettyCash(ctx, s.db, id, false)
	return pc, mapError(err)
}

func (s *Store) ListPettyCash(ctx context.Context, filter domain.DocumentFilter) ([]domain.PettyCash, error) {
	ids, err := s.listIDs(ctx, "petty_cash", filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.PettyCash, 0, len(ids))
	for _, id := range ids {
		pc, err := loadPettyCash(ctx, s.db, id, false)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, *pc)
	}
	return result, nil
}

func (s *Store) ConfirmPettyCash(ctx context.Context, id int64, actorID int64) (*domain.PettyCash, *domain.PettyCash, []domain.InventoryMovement, error) {
	var before, after *domain.PettyCash
	var movements []domain.InventoryMovement
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		pc, err := loadPettyCash(ctx, tx, id, true)
		if err != nil {
			return err
		}
		posted, err := countMovements(ctx, tx, ledger.SourcePettyCash, id)
		if err != nil {
			return err
		}
		post, err := workflow.CanConfirmPettyCash(pc.Status, posted)
		if err != nil {
			return err
		}
		before = pc
		if !post {
			after = pc
			movements = []domain.InventoryMovement{}
			return nil
		}
		if err := ledger.CheckPettyCashTotal(*pc); err != nil {
			return err
		}

		items := make(map[int64]domain.Item)
		for _, line := range pc.Lines {
			if line.ItemID == nil {
				continue
			}
			item, err := getItem(ctx, tx, *line.ItemID)
			if err != nil {
				return err
			}
			items[item.ID] = *item
		}

		now := time.Now().UTC()
		movements = ledger.PettyCashMovements(*pc, items, actorID, now)
		for i := range movements {
			if err := insertMovement(ctx, tx, &movements[i]); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE petty_cash SET status = $2, updated_at = $3 WHERE id = $1
		`, id, domain.PettyCashPosted, now); err != nil {
			return err
		}
		after, err = loadPettyCash(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return before, after, movements, nil
}

func (s *Store) CreatePortioningBatch(ctx context.Context, batch domain.PortioningBatch) (*domain.PortioningBatch, error) {
	for _, group := range [][]domain.PortioningLine{batch.Inputs, batch.Outputs, batch.Losses} {
		for _, line := range group {
			if line.Quantity <= 0 {
				return nil, fmt.Errorf("%w: portioning quantities must be positive", store.ErrValidation)
			}
		}
	}

	var created *domain.PortioningBatch
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO portioning_batches (location_id, status, notes, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$5)
			RETURNING id
		`, batch.LocationID, domain.PortioningDraft, batch.Notes, batch.CreatedBy, now).Scan(&batch.ID); err != nil {
			return err
		}
		groups := []struct {
			kind  string
			lines []domain.PortioningLine
		}{
			{"INPUT", batch.Inputs},
			{"OUTPUT", batch.Outputs},
			{"LOSS", batch.Losses},
		}
		for _, group := range groups {
			for _, line := range group.lines {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO portioning_lines (batch_id, kind, item_id, quantity)
					VALUES ($1,$2,$3,$4)
				`, batch.ID, group.kind, line.ItemID, line.Quantity); err != nil {
					return err
				}
			}
		}
		var err error
		created, err = loadPortioningBatch(ctx, tx, batch.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetPortioningBatch(ctx context.Context, id int64) (*domain.PortioningBatch, error) {
	batch, err := loadPortioningBatch(ctx, s.db, id, false)
	return batch, mapError(err)
}

func (s *Store) ListPortioningBatches(ctx context.Context, filter domain.DocumentFilter) ([]domain.PortioningBatch, error) {
	ids, err := s.listIDs(ctx, "portioning_batches", filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.PortioningBatch, 0, len(ids))
	for _, id := range ids {
		batch, err := loadPortioningBatch(ctx, s.db, id, false)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, *batch)
	}
	return result, nil
}

func (s *Store) ConfirmPortioningBatch(ctx context.Context, id int64, actorID int64) (*domain.PortioningBatch, *domain.PortioningBatch, []domain.InventoryMovement, error) {
	var before, after *domain.PortioningBatch
	var movements []domain.InventoryMovement
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		batch, err := loadPortioningBatch(ctx, tx, id, true)
		if err != nil {
			return err
		}
		posted, err := countMovements(ctx, tx, ledger.SourcePortioning, id)
		if err != nil {
			return err
		}
		post, err := workflow.CanConfirmPortioning(batch.Status, posted)
		if err != nil {
			return err
		}
		before = batch
		if !post {
			after = batch
			movements = []domain.InventoryMovement{}
			return nil
		}
		if err := ledger.ValidatePortioning(*batch); err != nil {
			return err
		}
		required := ledger.RequiredInputs(*batch)
		available := make(map[int64]float64, len(required))
		for itemID := range required {
			qty, err := onHand(ctx, tx, batch.LocationID, itemID)
			if err != nil {
				return err
			}
			available[itemID] = qty
		}
		if err := ledger.CheckCoverage(required, available); err != nil {
			return err
		}

		now := time.Now().UTC()
		movements = ledger.PortioningMovements(*batch, actorID, now)
		for i := range movements {
			if err := insertMovement(ctx, tx, &movements[i]); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE portioning_batches SET status = $2, updated_at = $3 WHERE id = $1
		`, id, domain.PortioningConfirmed, now); err != nil {
			return err
		}
		after, err = loadPortioningBatch(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return before, after, movements, nil
}

func onHand(ctx context.Context, q queryer, locationID int64, itemID int64) (float64, error) {
	var qty float64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM inventory_movements
		WHERE location_id = $1 AND item_id = $2 AND status = $3
	`, locationID, itemID, domain.MovementPosted).Scan(&qty)
	return qty, err
}

func countMovements(ctx context.Context, q queryer, sourceType string, sourceID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inventory_movements WHERE source_document_type = $1 AND source_document_id = $2
	`, sourceType, sourceID).Scan(&count)
	return count, err
}

func insertMovement(ctx context.Context, q queryer, m *domain.InventoryMovement) error {
	return q.QueryRowContext(ctx, `
		INSERT INTO inventory_movements (location_id, item_id, movement_type, quantity, unit_cost, status,
			source_document_type, source_document_id, goods_receipt_id, requisition_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, m.LocationID, m.ItemID, m.MovementType, m.Quantity, m.UnitCost, m.Status,
		m.SourceDocumentType, m.SourceDocumentID, nullIDPtr(m.GoodsReceiptID), nullIDPtr(m.RequisitionID), m.CreatedBy, m.CreatedAt,
	).Scan(&m.ID)
}

func insertAlert(ctx context.Context, q queryer, alert *domain.PriceAlert) error {
	return q.QueryRowContext(ctx, `
		INSERT INTO price_alerts (location_id, vendor_id, item_id, observation_id, status, severity, threshold_pct,
			baseline_unit_price, observed_unit_price, pct_change, reason, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, alert.LocationID, nullIDPtr(alert.VendorID), alert.ItemID, alert.ObservationID, alert.Status, alert.Severity, alert.ThresholdPct,
		alert.BaselineUnitPrice, alert.ObservedUnitPrice, alert.PctChange, alert.Reason, alert.CreatedBy, alert.CreatedAt,
	).Scan(&alert.ID)
}

// priorUnitPrices reads the baseline window for obs: same location, item
// and vendor (NULL matching NULL), newest first, obs itself excluded.
func priorUnitPrices(ctx context.Context, q queryer, obs domain.PriceObservation, window int) ([]float64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT unit_price
		FROM price_observations
		WHERE location_id = $1 AND item_id = $2 AND vendor_id IS NOT DISTINCT FROM $3 AND id <> $4
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, obs.LocationID, obs.ItemID, nullIDPtr(obs.VendorID), obs.ID, window)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make([]float64, 0, window)
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

func scanMovement(rows *sql.Rows) (domain.InventoryMovement, error) {
	var m domain.InventoryMovement
	var grnID, reqID sql.NullInt64
	if err := rows.Scan(
		&m.ID, &m.LocationID, &m.ItemID, &m.MovementType, &m.Quantity, &m.UnitCost, &m.Status,
		&m.SourceDocumentType, &m.SourceDocumentID, &grnID, &reqID, &m.CreatedBy, &m.CreatedAt,
	); err != nil {
		return m, err
	}
	m.GoodsReceiptID = ptrFromNull(grnID)
	m.RequisitionID = ptrFromNull(reqID)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func scanObservations(rows *sql.Rows) ([]domain.PriceObservation, error) {
	result := make([]domain.PriceObservation, 0)
	for rows.Next() {
		var obs domain.PriceObservation
		var vendorID, grnID sql.NullInt64
		if err := rows.Scan(
			&obs.ID, &obs.LocationID, &vendorID, &obs.ItemID, &obs.UnitPrice, &obs.Quantity,
			&obs.SourceDocumentType, &obs.SourceDocumentID, &grnID, &obs.CreatedBy, &obs.CreatedAt,
		); err != nil {
			return nil, err
		}
		obs.VendorID = ptrFromNull(vendorID)
		obs.GoodsReceiptID = ptrFromNull(grnID)
		obs.CreatedAt = obs.CreatedAt.UTC()
		result = append(result, obs)
	}
	return result, rows.Err()
}

func loadPettyCash(ctx context.Context, q queryer, id int64, lock bool) (*domain.PettyCash, error) {
	var pc domain.PettyCash
	err := q.QueryRowContext(ctx, `
		SELECT id, location_id, txn_date, vendor_name, description, status, amount, method, reference, created_by, created_at, updated_at
		FROM petty_cash
		WHERE id = $1`+lockClause(lock), id).Scan(
		&pc.ID, &pc.LocationID, &pc.TxnDate, &pc.VendorName, &pc.Description, &pc.Status, &pc.Amount, &pc.Method, &pc.Reference, &pc.CreatedBy, &pc.CreatedAt, &pc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pc.TxnDate, pc.CreatedAt, pc.UpdatedAt = pc.TxnDate.UTC(), pc.CreatedAt.UTC(), pc.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT item_id, description, quantity, unit_price, amount FROM petty_cash_lines WHERE petty_cash_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pc.Lines = make([]domain.PettyCashLine, 0, 4)
	for rows.Next() {
		var line domain.PettyCashLine
		var itemID sql.NullInt64
		if err := rows.Scan(&itemID, &line.Description, &line.Quantity, &line.UnitPrice, &line.Amount); err != nil {
			return nil, err
		}
		line.ItemID = ptrFromNull(itemID)
		pc.Lines = append(pc.Lines, line)
	}
	return &pc, rows.Err()
}

func loadPortioningBatch(ctx context.Context, q queryer, id int64, lock bool) (*domain.PortioningBatch, error) {
	var batch domain.PortioningBatch
	err := q.QueryRowContext(ctx, `
		SELECT id, location_id, status, notes, created_by, created_at, updated_at
		FROM portioning_batches
		WHERE id = $1`+lockClause(lock), id).Scan(
		&batch.ID, &batch.LocationID, &batch.Status, &batch.Notes, &batch.CreatedBy, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	batch.CreatedAt, batch.UpdatedAt = batch.CreatedAt.UTC(), batch.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT kind, item_id, quantity FROM portioning_lines WHERE batch_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batch.Inputs = make([]domain.PortioningLine, 0, 4)
	batch.Outputs = make([]domain.PortioningLine, 0, 4)
	batch.Losses = make([]domain.PortioningLine, 0)
	for rows.Next() {
		var kind string
		var line domain.PortioningLine
		if err := rows.Scan(&kind, &line.ItemID, &line.Quantity); err != nil {
			return nil, err
		}
		switch kind {
		case "INPUT":
			batch.Inputs = append(batch.Inputs, line)
		case "OUTPUT":
			batch.Outputs = append(batch.Outputs, line)
		default:
			batch.Losses = append(batch.Losses, line)
		}
	}
	return &batch, rows.Err()
}
