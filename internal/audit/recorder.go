// Package audit appends the tamper-evident trail of every sensitive or
// mutating operation against booking data.
package audit

import (
	"fmt"
	"time"

	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit action codes.
const (
	ActionCreate            = "CREATE"
	ActionRead              = "READ"
	ActionReadList          = "READ_LIST"
	ActionUpdate            = "UPDATE"
	ActionDelete            = "DELETE"
	ActionReadSecureNotes   = "READ_SECURE_NOTES"
	ActionUpdateSecureNotes = "UPDATE_SECURE_NOTES"
	ActionGenerateSummary   = "GENERATE_SUMMARY"
	ActionReadStats         = "READ_STATS"
	ActionBookingCreated    = "BOOKING_CREATED"
	ActionBookingUpdated    = "BOOKING_UPDATED"
	ActionPurgeAuditLogs    = "PURGE_AUDIT_LOGS"
)

const EntityBooking = "booking"

// Recorder writes one immutable row per call, synchronously, after the
// action it documents. A write failure is the caller's error to
// propagate; a silent audit gap defeats the point of the trail.
type Recorder struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends exactly one entry. entityID and bookingID are nil for
// list-level operations.
func (r *Recorder) Record(action, entityType string, entityID *uuid.UUID, userID uuid.UUID, bookingID *uuid.UUID, metadata map[string]interface{}) error {
	entry := models.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		BookingID:  bookingID,
		Metadata:   metadata,
	}
	if err := r.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("audit record failed for %s: %w", action, err)
	}
	return nil
}

// PurgeOlderThan deletes entries created before cutoff and returns the
// count. This is the one sanctioned way audit rows leave the system,
// invoked explicitly by an administrator.
func (r *Recorder) PurgeOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListForBooking returns the trail for one booking, newest first.
func (r *Recorder) ListForBooking(bookingID uuid.UUID, limit int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	q := r.db.Where("booking_id = ?", bookingID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}
