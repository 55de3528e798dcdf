package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Canonical booking statuses. The Cal platform's vocabulary
// (ACCEPTED/PENDING/CANCELLED/REJECTED) is translated at the webhook
// boundary; only these values are stored.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Sensitivity levels. Caller-declared classification, not an
// access-control mechanism.
const (
	SensitivityHigh   = "High"
	SensitivityMedium = "Medium"
	SensitivityLow    = "Low"
)

// Attendee is one booking participant as reported by the platform.
type Attendee struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	TimeZone string `json:"timeZone"`
}

// Booking is the central entity: one scheduled meeting between a pastor
// and congregants, mirrored from the Cal platform. Sensitive intake
// content is stored only as an AES-GCM envelope in EncryptedIntake.
type Booking struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CalBookingID  int64     `gorm:"not null;uniqueIndex" json:"cal_booking_id"`
	CalBookingUID string    `gorm:"size:255;index" json:"cal_booking_uid"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	EventTypeID    int64  `json:"event_type_id"`
	EventTypeTitle string `gorm:"size:255" json:"event_type_title,omitempty"`
	EventTypeSlug  string `gorm:"size:255" json:"event_type_slug,omitempty"`

	Title       string    `gorm:"not null;size:500" json:"title"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	StartTime   time.Time `gorm:"not null;index" json:"start_time"`
	EndTime     time.Time `gorm:"not null" json:"end_time"`
	TimeZone    string    `gorm:"size:100" json:"time_zone,omitempty"`
	// Duration in minutes; always round((end-start)/60000).
	Duration int    `gorm:"not null" json:"duration"`
	Location string `gorm:"size:500" json:"location,omitempty"`

	Attendees datatypes.JSONSlice[Attendee] `json:"attendees,omitempty"`
	// Denormalized 1:1 projections of Attendees, derived at write time.
	AttendeeEmails datatypes.JSONSlice[string] `json:"attendee_emails,omitempty"`
	AttendeeNames  datatypes.JSONSlice[string] `json:"attendee_names,omitempty"`

	Sensitivity string `gorm:"size:10;not null;default:'Medium';index" json:"sensitivity"`
	IsAnonymous bool   `gorm:"default:false" json:"is_anonymous"`

	// Calendar provider name -> provider event id.
	ProviderIDs datatypes.JSONMap `json:"provider_ids,omitempty"`

	// AES-GCM envelope holding intake notes; never plaintext at rest.
	EncryptedIntake string `gorm:"type:text" json:"-"`
	// Sanitized description pushed to external calendar events.
	RedactedDescription string `gorm:"type:text" json:"redacted_description,omitempty"`

	Metadata datatypes.JSONMap `json:"metadata,omitempty"`
	Status   string            `gorm:"size:20;not null;default:'pending';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User             User             `gorm:"foreignKey:UserID" json:"-"`
	FormResponses    []FormResponse   `gorm:"foreignKey:BookingID" json:"form_responses,omitempty"`
	ContextSummaries []ContextSummary `gorm:"foreignKey:BookingID" json:"context_summaries,omitempty"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (Booking) TableName() string {
	return "bookings"
}

// NormalizeStatus maps either status vocabulary onto the canonical one.
// The second return reports whether the input was recognized.
func NormalizeStatus(s string) (string, bool) {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, true
	case "ACCEPTED":
		return StatusConfirmed, true
	case "PENDING":
		return StatusPending, true
	case "CANCELLED", "REJECTED":
		return StatusCancelled, true
	}
	return "", false
}

// ValidSensitivity reports whether s is one of the declared levels.
func ValidSensitivity(s string) bool {
	return s == SensitivityHigh || s == SensitivityMedium || s == SensitivityLow
}
