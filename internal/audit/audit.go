package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"dapurku/backend/internal/domain"
)

// Sink receives audit events after the state change they describe has
// committed.
type Sink interface {
	Emit(ctx context.Context, event domain.AuditEvent) error
}

type Writer interface {
	CreateAuditEvent(ctx context.Context, event domain.AuditEvent) error
}

func NewEvent(actor domain.Actor, action string, entityType string, entityID int64, locationID int64, before any, after any, payload map[string]any) domain.AuditEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	return domain.AuditEvent{
		ID: uuid.NewString(),
		Actor: domain.AuditActor{
			UserID:       actor.UserID,
			Username:     actor.Username,
			Role:         actor.Role,
			DepartmentID: actor.DepartmentID,
		},
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		LocationID: locationID,
		Before:     before,
		After:      after,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

type Noop struct{}

func (Noop) Emit(_ context.Context, _ domain.AuditEvent) error {
	return nil
}

// RepoSink persists events in the audit_events table of the repository.
type RepoSink struct {
	repo Writer
}

func NewRepoSink(repo Writer) *RepoSink {
	return &RepoSink{repo: repo}
}

func (s *RepoSink) Emit(ctx context.Context, event domain.AuditEvent) error {
	return s.repo.CreateAuditEvent(ctx, event)
}

// RedisStreamSink appends events to a Redis stream for downstream consumers.
type RedisStreamSink struct {
	client *redis.Client
	stream string
}

func NewRedisStreamSink(client *redis.Client, stream string) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream}
}

func (s *RedisStreamSink) Emit(ctx context.Context, event domain.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":          event.ID,
			"action":      event.Action,
			"entity_type": event.EntityType,
			"entity_id":   event.EntityID,
			"location_id": event.LocationID,
			"event":       string(body),
		},
	}).Err()
}

// Multi fans an event out to every sink and joins their failures.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event domain.AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
