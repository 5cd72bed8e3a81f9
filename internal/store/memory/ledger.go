package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/ledger"
	"dapurku/backend/internal/pricing"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/workflow"
)

func (s *Store) OnHand(_ context.Context, locationID int64, itemID int64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.onHand(locationID, itemID), nil
}

func (s *Store) StockByLocation(_ context.Context, itemID int64) ([]domain.LocationStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.items[itemID]; !ok {
		return nil, store.ErrNotFound
	}
	result := make([]domain.LocationStock, 0, len(s.locations))
	for id := range s.locations {
		result = append(result, domain.LocationStock{LocationID: id, OnHand: s.onHand(id, itemID)})
	}
	slices.SortFunc(result, func(a, b domain.LocationStock) int { return cmpID(a.LocationID, b.LocationID) })
	return result, nil
}

func (s *Store) ListMovementsBySource(_ context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sourceType := strings.ToUpper(strings.TrimSpace(filter.SourceDocumentType))
	result := make([]domain.InventoryMovement, 0)
	for _, m := range s.movements {
		if m.SourceDocumentType == sourceType && m.SourceDocumentID == filter.SourceDocumentID {
			result = append(result, m)
		}
	}
	slices.SortFunc(result, func(a, b domain.InventoryMovement) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return paginate(result, filter.Page), nil
}

func (s *Store) ListPriceObservations(_ context.Context, filter domain.PriceObservationFilter) ([]domain.PriceObservation, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PriceObservation, 0)
	for _, obs := range s.observations {
		if obs.LocationID != filter.LocationID {
			continue
		}
		if filter.ItemID != nil && obs.ItemID != *filter.ItemID {
			continue
		}
		if filter.VendorID != nil && (obs.VendorID == nil || *obs.VendorID != *filter.VendorID) {
			continue
		}
		result = append(result, obs)
	}
	slices.SortFunc(result, newestObservationFirst)
	return paginate(result, filter.Page), nil
}

func (s *Store) ListPriceAlerts(_ context.Context, filter domain.PriceAlertFilter) ([]domain.PriceAlert, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	result := make([]domain.PriceAlert, 0)
	for _, alert := range s.alerts {
		if alert.LocationID != filter.LocationID {
			continue
		}
		if status != "" && alert.Status != status {
			continue
		}
		if filter.ItemID != nil && alert.ItemID != *filter.ItemID {
			continue
		}
		if filter.VendorID != nil && (alert.VendorID == nil || *alert.VendorID != *filter.VendorID) {
			continue
		}
		result = append(result, alert)
	}
	slices.SortFunc(result, func(a, b domain.PriceAlert) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(b.ID, a.ID)
	})
	return paginate(result, filter.Page), nil
}

// LatestObservationsByItem returns, per item, the newest observation for
// the location and vendor.
func (s *Store) LatestObservationsByItem(_ context.Context, locationID int64, vendorID int64) ([]domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int64]domain.PriceObservation)
	for _, obs := range s.observations {
		if obs.LocationID != locationID || obs.VendorID == nil || *obs.VendorID != vendorID {
			continue
		}
		current, ok := latest[obs.ItemID]
		if !ok || newestObservationFirst(obs, current) < 0 {
			latest[obs.ItemID] = obs
		}
	}
	result := make([]domain.PriceObservation, 0, len(latest))
	for _, obs := range latest {
		result = append(result, obs)
	}
	slices.SortFunc(result, func(a, b domain.PriceObservation) int { return cmpID(a.ItemID, b.ItemID) })
	return result, nil
}

func (s *Store) PriorUnitPrices(_ context.Context, obs domain.PriceObservation, window int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return pricing.PriorWindow(obs, s.observations, window), nil
}

func (s *Store) CreatePettyCash(_ context.Context, pc domain.PettyCash) (*domain.PettyCash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(pc.LocationID); err != nil {
		return nil, err
	}
	lines, amount, err := ledger.PettyCashAmounts(pc.Lines)
	if err != nil {
		return nil, err
	}
	itemIDs := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.ItemID != nil {
			itemIDs = append(itemIDs, *line.ItemID)
		}
	}
	if err := s.requireItems(itemIDs); err != nil {
		return nil, err
	}

	now := s.now()
	pc.ID = s.nextID("petty_cash")
	pc.Lines = lines
	pc.Amount = amount
	pc.Status = domain.PettyCashPending
	if strings.TrimSpace(pc.Method) == "" {
		pc.Method = "CASH"
	}
	if pc.TxnDate.IsZero() {
		pc.TxnDate = now
	}
	pc.CreatedAt = now
	pc.UpdatedAt = now
	s.pettyCash[pc.ID] = clonePettyCash(pc)
	out := clonePettyCash(pc)
	return &out, nil
}

func (s *Store) GetPettyCash(_ context.Context, id int64) (*domain.PettyCash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pc, ok := s.pettyCash[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePettyCash(pc)
	return &out, nil
}

func (s *Store) ListPettyCash(_ context.Context, filter domain.DocumentFilter) ([]domain.PettyCash, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PettyCash, 0, len(s.pettyCash))
	for _, pc := range s.pettyCash {
		if matchesFilter(filter, pc.LocationID, pc.Status) {
			result = append(result, clonePettyCash(pc))
		}
	}
	slices.SortFunc(result, func(a, b domain.PettyCash) int { return cmpID(b.ID, a.ID) })
	return paginate(result, filter.Page), nil
}

func (s *Store) ConfirmPettyCash(_ context.Context, id int64, actorID int64) (*domain.PettyCash, *domain.PettyCash, []domain.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.pettyCash[id]
	if !ok {
		return nil, nil, nil, store.ErrNotFound
	}
	post, err := workflow.CanConfirmPettyCash(pc.Status, s.countMovements(ledger.SourcePettyCash, id))
	if err != nil {
		return nil, nil, nil, err
	}
	before := clonePettyCash(pc)
	if !post {
		after := clonePettyCash(pc)
		return &before, &after, []domain.InventoryMovement{}, nil
	}
	if err := ledger.CheckPettyCashTotal(pc); err != nil {
		return nil, nil, nil, err
	}

	now := s.now()
	movements := ledger.PettyCashMovements(pc, s.items, actorID, now)
	for i := range movements {
		movements[i].ID = s.nextID("inventory_movements")
	}
	s.movements = append(s.movements, movements...)
	pc.Status = domain.PettyCashPosted
	pc.UpdatedAt = now
	s.pettyCash[id] = pc
	after := clonePettyCash(pc)
	return &before, &after, slices.Clone(movements), nil
}

func (s *Store) CreatePortioningBatch(_ context.Context, batch domain.PortioningBatch) (*domain.PortioningBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocation(batch.LocationID); err != nil {
		return nil, err
	}
	itemIDs := make([]int64, 0)
	for _, group := range [][]domain.PortioningLine{batch.Inputs, batch.Outputs, batch.Losses} {
		for _, line := range group {
			if line.Quantity <= 0 {
				return nil, fmt.Errorf("%w: portioning quantities must be positive", store.ErrValidation)
			}
			itemIDs = append(itemIDs, line.ItemID)
		}
	}
	if err := s.requireItems(itemIDs); err != nil {
		return nil, err
	}

	now := s.now()
	batch.ID = s.nextID("portioning_batches")
	batch.Status = domain.PortioningDraft
	batch.CreatedAt = now
	batch.UpdatedAt = now
	s.portioning[batch.ID] = clonePortioning(batch)
	out := clonePortioning(batch)
	return &out, nil
}

func (s *Store) GetPortioningBatch(_ context.Context, id int64) (*domain.PortioningBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.portioning[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePortioning(batch)
	return &out, nil
}

func (s *Store) ListPortioningBatches(_ context.Context, filter domain.DocumentFilter) ([]domain.PortioningBatch, error) {
	if err := filter.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PortioningBatch, 0, len(s.portioning))
	for _, batch := range s.portioning {
		if matchesFilter(filter, batch.LocationID, batch.Status) {
			result = append(result, clonePortioning(batch))
		}
	}
	slices.SortFunc(result, func(a, b domain.PortioningBatch) int { return cmpID(b.ID, a.ID) })
	return paginate(result, filter.Page), nil
}

func (s *Store) ConfirmPortioningBatch(_ context.Context, id int64, actorID int64) (*domain.PortioningBatch, *domain.PortioningBatch, []domain.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.portioning[id]
	if !ok {
		return nil, nil, nil, store.ErrNotFound
	}
	post, err := workflow.CanConfirmPortioning(batch.Status, s.countMovements(ledger.SourcePortioning, id))
	if err != nil {
		return nil, nil, nil, err
	}
	before := clonePortioning(batch)
	if !post {
		after := clonePortioning(batch)
		return &before, &after, []domain.InventoryMovement{}, nil
	}
	if err := ledger.ValidatePortioning(batch); err != nil {
		return nil, nil, nil, err
	}
	required := ledger.RequiredInputs(batch)
	onHand := make(map[int64]float64, len(required))
	for itemID := range required {
		onHand[itemID] = s.onHand(batch.LocationID, itemID)
	}
	if err := ledger.CheckCoverage(required, onHand); err != nil {
		return nil, nil, nil, err
	}

	now := s.now()
	movements := ledger.PortioningMovements(batch, actorID, now)
	for i := range movements {
		movements[i].ID = s.nextID("inventory_movements")
	}
	s.movements = append(s.movements, movements...)
	batch.Status = domain.PortioningConfirmed
	batch.UpdatedAt = now
	s.portioning[id] = batch
	after := clonePortioning(batch)
	return &before, &after, slices.Clone(movements), nil
}

func (s *Store) onHand(locationID int64, itemID int64) float64 {
	matching := make([]domain.InventoryMovement, 0)
	for _, m := range s.movements {
		if m.LocationID == locationID && m.ItemID == itemID {
			matching = append(matching, m)
		}
	}
	return ledger.SumQuantity(matching)
}

func (s *Store) countMovements(sourceType string, sourceID int64) int {
	count := 0
	for _, m := range s.movements {
		if m.SourceDocumentType == sourceType && m.SourceDocumentID == sourceID {
			count++
		}
	}
	return count
}

func (s *Store) hasObservation(sourceType string, sourceID int64, itemID int64) bool {
	for _, obs := range s.observations {
		if obs.SourceDocumentType == sourceType && obs.SourceDocumentID == sourceID && obs.ItemID == itemID {
			return true
		}
	}
	return false
}

func newestObservationFirst(a, b domain.PriceObservation) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmpID(b.ID, a.ID)
}

func clonePettyCash(src domain.PettyCash) domain.PettyCash {
	dup := src
	dup.Lines = make([]domain.PettyCashLine, len(src.Lines))
	for i, line := range src.Lines {
		if line.ItemID != nil {
			line.ItemID = idPtr(*line.ItemID)
		}
		dup.Lines[i] = line
	}
	return dup
}

func clonePortioning(src domain.PortioningBatch) domain.PortioningBatch {
	dup := src
	dup.Inputs = slices.Clone(src.Inputs)
	dup.Outputs = slices.Clone(src.Outputs)
	dup.Losses = slices.Clone(src.Losses)
	return dup
}
