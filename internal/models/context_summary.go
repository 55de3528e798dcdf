package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContextSummary is the at-most-one meeting summary attached to a
// booking. The body is encrypted at rest; Metadata carries only the
// non-sensitive shape (topic, participants, when, duration, method).
// The unique index on BookingID makes creation first-call-wins.
type ContextSummary struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID        uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"booking_id"`
	EncryptedSummary string            `gorm:"type:text;not null" json:"-"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	// ExpiresAt drives the retention purge job; nil means keep.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s *ContextSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (ContextSummary) TableName() string {
	return "context_summaries"
}
