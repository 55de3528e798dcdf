package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is the append-only accountability record. Rows are never
// updated and carry no foreign key to bookings, so an entry survives
// the deletion of the booking it references. Retention is an explicit
// administrative purge, never automatic.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Action     string     `gorm:"size:50;not null;index" json:"action"`
	EntityType string     `gorm:"size:50" json:"entity_type,omitempty"`
	// EntityID is nil for list-level operations.
	EntityID  *uuid.UUID        `gorm:"type:uuid" json:"entity_id,omitempty"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	BookingID *uuid.UUID        `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
