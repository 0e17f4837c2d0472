package postgres

import (
	"time"

	"github.com/google/uuid"
)

// SandboxEventModel maps to the "sandbox_events" table. The table is
// append-only; rows are never updated or deleted by the application.
type SandboxEventModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SandboxID string    `gorm:"not null;index"`
	Type      string    `gorm:"not null"`
	Command   string
	ExitCode  int
	Detail    string
	CreatedAt time.Time `gorm:"index"`
}

func (SandboxEventModel) TableName() string { return "sandbox_events" }
