package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/repobox/internal/sandbox"
)

// EventRepository implements storage.EventStore with GORM. It works
// unchanged against both PostgreSQL and SQLite connections.
// Append-only: no Update or Delete methods exist on this type.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates an EventRepository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts a single event. This is the only write method —
// immutability is enforced at the interface level.
func (r *EventRepository) Append(ctx context.Context, event sandbox.Event) error {
	model := toEventModel(event)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("appending sandbox event: %w", err)
	}
	return nil
}

// ListBySandbox returns events for one sandbox, newest first.
// Limit defaults to 100.
func (r *EventRepository) ListBySandbox(ctx context.Context, sandboxID string, limit int) ([]sandbox.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []SandboxEventModel
	err := r.db.WithContext(ctx).
		Where("sandbox_id = ?", sandboxID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("querying sandbox events: %w", err)
	}

	events := make([]sandbox.Event, len(models))
	for i := range models {
		events[i] = toEventDomain(&models[i])
	}
	return events, nil
}

func toEventModel(e sandbox.Event) SandboxEventModel {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return SandboxEventModel{
		ID:        uuid.New(),
		SandboxID: e.SandboxID,
		Type:      e.Type,
		Command:   e.Command,
		ExitCode:  e.ExitCode,
		Detail:    e.Detail,
		CreatedAt: createdAt,
	}
}

func toEventDomain(m *SandboxEventModel) sandbox.Event {
	return sandbox.Event{
		SandboxID: m.SandboxID,
		Type:      m.Type,
		Command:   m.Command,
		ExitCode:  m.ExitCode,
		Detail:    m.Detail,
		CreatedAt: m.CreatedAt,
	}
}
