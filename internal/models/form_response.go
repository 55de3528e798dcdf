package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FormResponse is one intake questionnaire submission attached to a
// booking. The answers live only in EncryptedData (AES-GCM envelope);
// RedactedData carries the non-sensitive subset kept for analytics.
// FormID references the intake form definition owned by the separate
// forms service and is nil for submissions relayed by the platform.
type FormResponse struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FormID    *uuid.UUID `gorm:"type:uuid;index" json:"form_id,omitempty"`
	BookingID uuid.UUID  `gorm:"type:uuid;not null;index" json:"booking_id"`

	EncryptedData string            `gorm:"type:text;not null" json:"-"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	RedactedData  datatypes.JSONMap `json:"redacted_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *FormResponse) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (FormResponse) TableName() string {
	return "form_responses"
}
