package service

import (
	"context"
	"strings"

	"dapurku/backend/internal/domain"
)

// OnHand is computed from posted ledger movements on every call. Available
// equals on-hand since nothing reserves stock.
func (s *Service) OnHand(ctx context.Context, locationID int64, itemID int64) (domain.StockLevel, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return domain.StockLevel{}, err
	}
	if err := requireLocation(actor, locationID); err != nil {
		return domain.StockLevel{}, err
	}
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return domain.StockLevel{}, err
	}
	qty, err := s.repo.OnHand(ctx, locationID, itemID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return domain.StockLevel{LocationID: locationID, ItemID: itemID, OnHand: qty, Available: qty}, nil
}

func (s *Service) StockByLocation(ctx context.Context, itemID int64) ([]domain.LocationStock, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return nil, err
	}
	stock, err := s.repo.StockByLocation(ctx, itemID)
	if err != nil {
		return nil, err
	}
	visible := make([]domain.LocationStock, 0, len(stock))
	for _, row := range stock {
		if canAccessLocation(actor, row.LocationID) {
			visible = append(visible, row)
		}
	}
	return visible, nil
}

func (s *Service) ListMovementsBySource(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	actor, err := s.authorize(ctx, anyRole)
	if err != nil {
		return nil, err
	}
	filter.SourceDocumentType = strings.ToUpper(strings.TrimSpace(filter.SourceDocumentType))
	movements, err := s.repo.ListMovementsBySource(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := make([]domain.InventoryMovement, 0, len(movements))
	for _, m := range movements {
		if canAccessLocation(actor, m.LocationID) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

func (s *Service) CreatePortioningBatch(ctx context.Context, req domain.PortioningCreateRequest) (domain.PortioningBatch, error) {
	actor, err := s.authorize(ctx, kitchenOperators)
	if err != nil {
		return domain.PortioningBatch{}, err
	}
	if err := requireLocation(actor, req.LocationID); err != nil {
		return domain.PortioningBatch{}, err
	}
	created, err := s.repo.CreatePortioningBatch(ctx, domain.PortioningBatch{
		LocationID: req.LocationID,
		Notes:      strings.TrimSpace(req.Notes),
		CreatedBy:  actor.UserID,
		Inputs:     req.Inputs,
		Outputs:    req.Outputs,
		Losses:     req.Losses,
	})
	if err != nil {
		return domain.PortioningBatch{}, err
	}

	s.emit(ctx, actor, "PORTIONING_BATCH_CREATED", "portioning_batch", created.ID, created.LocationID, nil, domain.SnapshotPortioning(*created), map[string]any{
		"inputs":  len(created.Inputs),
		"outputs": len(created.Outputs),
		"losses":  len(created.Losses),
	})
	return *created, nil
}

func (s *Service) GetPortioningBatch(ctx context.Context, id int64) (domain.PortioningBatch, error) {
	actor, err := s.authorize(ctx, kitchenOperators)
	if err != nil {
		return domain.PortioningBatch{}, err
	}
	batch, err := s.repo.GetPortioningBatch(ctx, id)
	if err != nil {
		return domain.PortioningBatch{}, err
	}
	if err := requireLocation(actor, batch.LocationID); err != nil {
		return domain.PortioningBatch{}, err
	}
	return *batch, nil
}

func (s *Service) ListPortioningBatches(ctx context.Context, filter domain.DocumentFilter) ([]domain.PortioningBatch, error) {
	actor, err := s.authorize(ctx, kitchenOperators)
	if err != nil {
		return nil, err
	}
	if filter.LocationID, err = scopeFilter(actor, filter.LocationID); err != nil {
		return nil, err
	}
	return s.repo.ListPortioningBatches(ctx, filter)
}

func (s *Service) ConfirmPortioningBatch(ctx context.Context, id int64) (domain.PortioningConfirmation, error) {
	current, err := s.GetPortioningBatch(ctx, id)
	if err != nil {
		return domain.PortioningConfirmation{}, err
	}
	actor, _ := ActorFromContext(ctx)

	var before, after *domain.PortioningBatch
	var movements []domain.InventoryMovement
	// Inputs draw down branch stock, so batches at one location confirm one at a time.
	err = s.withDocumentLock(ctx, "portioning_location", current.LocationID, func(ctx context.Context) error {
		var err error
		before, after, movements, err = s.repo.ConfirmPortioningBatch(ctx, id, actor.UserID)
		return err
	})
	if err != nil {
		return domain.PortioningConfirmation{}, err
	}

	if before.Status != after.Status {
		s.emit(ctx, actor, "PORTIONING_BATCH_CONFIRMED", "portioning_batch", after.ID, after.LocationID,
			domain.SnapshotPortioning(*before), domain.SnapshotPortioning(*after), map[string]any{
				"inventory_movements_created": len(movements),
			})
	}
	return domain.PortioningConfirmation{Batch: *after, Movements: movements}, nil
}
