package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/churchhub/churchhub-api/internal/apperr"
	"github.com/churchhub/churchhub-api/internal/audit"
	"github.com/churchhub/churchhub-api/internal/crypto"
	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/churchhub/churchhub-api/internal/queue"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BookingService owns booking records and their encrypted payloads,
// always scoped by owning user. Every operation records its audit entry
// synchronously; an audit write failure fails the operation.
type BookingService struct {
	db        *gorm.DB
	codec     *crypto.Codec
	audit     *audit.Recorder
	summaries *SummarySynthesizer
	jobs      queue.Publisher
}

func NewBookingService(db *gorm.DB, codec *crypto.Codec, recorder *audit.Recorder, jobs queue.Publisher) *BookingService {
	return &BookingService{
		db:        db,
		codec:     codec,
		audit:     recorder,
		summaries: NewSummarySynthesizer(),
		jobs:      jobs,
	}
}

// forOwner scopes a query to bookings owned by the given user.
func forOwner(userID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}

type CreateBookingInput struct {
	CalBookingID   int64
	CalBookingUID  string
	EventTypeID    int64
	EventTypeTitle string
	EventTypeSlug  string
	Title          string
	Description    string
	StartTime      time.Time
	EndTime        time.Time
	TimeZone       string
	Location       string
	Attendees      []models.Attendee
	Sensitivity    string
	IsAnonymous    bool
	ProviderIDs    map[string]interface{}
	Metadata       map[string]interface{}
	Status         string
}

type UpdateBookingInput struct {
	Title       *string
	Description *string
	Sensitivity *string
	IsAnonymous *bool
	Status      *string
	Metadata    map[string]interface{}
}

type ListOptions struct {
	Status      string
	Sensitivity string
	StartDate   *time.Time
	EndDate     *time.Time
	Limit       int
	Offset      int
}

type BookingStats struct {
	Total         int64            `json:"total"`
	Upcoming      int64            `json:"upcoming"`
	Past          int64            `json:"past"`
	ThisWeek      int64            `json:"this_week"`
	ThisMonth     int64            `json:"this_month"`
	ByStatus      map[string]int64 `json:"by_status"`
	BySensitivity map[string]int64 `json:"by_sensitivity"`
}

// Create persists a new booking for the given owner. The external
// booking id is globally unique; a duplicate yields AlreadyExists even
// when two creates race (the DB unique index decides the winner).
func (s *BookingService) Create(userID uuid.UUID, in CreateBookingInput) (*models.Booking, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("owner %s: %w", userID, apperr.ErrNotFound)
		}
		return nil, err
	}

	var count int64
	if err := s.db.Model(&models.Booking{}).Where("cal_booking_id = ?", in.CalBookingID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("booking with cal id %d: %w", in.CalBookingID, apperr.ErrAlreadyExists)
	}

	status := models.StatusPending
	if in.Status != "" {
		normalized, ok := models.NormalizeStatus(in.Status)
		if !ok {
			return nil, fmt.Errorf("unknown status %q: %w", in.Status, apperr.ErrBadInput)
		}
		status = normalized
	}
	sensitivity := models.SensitivityMedium
	if in.Sensitivity != "" {
		if !models.ValidSensitivity(in.Sensitivity) {
			return nil, fmt.Errorf("unknown sensitivity %q: %w", in.Sensitivity, apperr.ErrBadInput)
		}
		sensitivity = in.Sensitivity
	}

	emails, names := attendeeProjections(in.Attendees)
	redacted := redactDescription(in.Description, sensitivity, in.IsAnonymous)
	booking := models.Booking{
		CalBookingID:   in.CalBookingID,
		CalBookingUID:  in.CalBookingUID,
		UserID:         userID,
		EventTypeID:    in.EventTypeID,
		EventTypeTitle: in.EventTypeTitle,
		EventTypeSlug:  in.EventTypeSlug,
		Title:          in.Title,
		Description:    in.Description,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		TimeZone:       in.TimeZone,
		Duration:       durationMinutes(in.StartTime, in.EndTime),
		Location:       in.Location,
		Attendees:      in.Attendees,
		AttendeeEmails: emails,
		AttendeeNames:  names,
		Sensitivity:    sensitivity,
		IsAnonymous:    in.IsAnonymous,
		ProviderIDs:    in.ProviderIDs,

		RedactedDescription: redacted,

		Metadata: in.Metadata,
		Status:   status,
	}

	if err := s.db.Create(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("booking with cal id %d: %w", in.CalBookingID, apperr.ErrAlreadyExists)
		}
		return nil, err
	}

	if err := s.audit.Record(audit.ActionCreate, audit.EntityBooking, &booking.ID, userID, &booking.ID, map[string]interface{}{
		"calBookingId": in.CalBookingID,
		"eventTypeId":  in.EventTypeID,
		"title":        in.Title,
	}); err != nil {
		return nil, err
	}

	return &booking, nil
}

// List returns the owner's bookings ordered by start time descending,
// plus the total count ignoring limit/offset.
func (s *BookingService) List(userID uuid.UUID, opts ListOptions) ([]models.Booking, int64, error) {
	query := s.db.Model(&models.Booking{}).Scopes(forOwner(userID))

	filters := map[string]interface{}{}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
		filters["status"] = opts.Status
	}
	if opts.Sensitivity != "" {
		query = query.Where("sensitivity = ?", opts.Sensitivity)
		filters["sensitivity"] = opts.Sensitivity
	}
	if opts.StartDate != nil {
		query = query.Where("start_time >= ?", *opts.StartDate)
		filters["startDate"] = opts.StartDate.UTC().Format(time.RFC3339)
	}
	if opts.EndDate != nil {
		query = query.Where("start_time <= ?", *opts.EndDate)
		filters["endDate"] = opts.EndDate.UTC().Format(time.RFC3339)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := query.Order("start_time DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var bookings []models.Booking
	if err := q.Find(&bookings).Error; err != nil {
		return nil, 0, err
	}

	if err := s.audit.Record(audit.ActionReadList, audit.EntityBooking, nil, userID, nil, map[string]interface{}{
		"filters": filters,
		"count":   len(bookings),
	}); err != nil {
		return nil, 0, err
	}

	return bookings, total, nil
}

// GetByID returns a booking with its attached form responses and
// context summaries. NotFound when the booking does not exist,
// Forbidden when it belongs to someone else; neither error carries any
// field of the other user's record.
func (s *BookingService) GetByID(bookingID, userID uuid.UUID) (*models.Booking, error) {
	booking, err := s.fetchOwned(bookingID, userID, true)
	if err != nil {
		return nil, err
	}

	if err := s.audit.Record(audit.ActionRead, audit.EntityBooking, &booking.ID, userID, &booking.ID, map[string]interface{}{
		"calBookingId": booking.CalBookingID,
		"title":        booking.Title,
	}); err != nil {
		return nil, err
	}

	return booking, nil
}

// fetchOwned loads a booking and enforces ownership: existence first,
// then owner. Shared authorization step for every per-booking
// operation; the public GetByID adds the READ audit entry.
func (s *BookingService) fetchOwned(bookingID, userID uuid.UUID, withRelations bool) (*models.Booking, error) {
	q := s.db
	if withRelations {
		q = q.Preload("FormResponses").Preload("ContextSummaries")
	}
	var booking models.Booking
	if err := q.First(&booking, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking %s: %w", bookingID, apperr.ErrNotFound)
		}
		return nil, err
	}
	if booking.UserID != userID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, apperr.ErrForbidden)
	}
	return &booking, nil
}

// Update applies a shallow merge over the mutable fields. External
// identifiers, owner, and scheduling facts from the platform are
// immutable here; metadata is merged key-wise, not replaced.
func (s *BookingService) Update(bookingID, userID uuid.UUID, in UpdateBookingInput) (*models.Booking, error) {
	booking, err := s.fetchOwned(bookingID, userID, false)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	changes := map[string]interface{}{}

	if in.Title != nil {
		updates["title"] = *in.Title
		changes["title"] = *in.Title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
		changes["description"] = *in.Description
	}
	if in.Sensitivity != nil {
		if !models.ValidSensitivity(*in.Sensitivity) {
			return nil, fmt.Errorf("unknown sensitivity %q: %w", *in.Sensitivity, apperr.ErrBadInput)
		}
		updates["sensitivity"] = *in.Sensitivity
		changes["sensitivity"] = *in.Sensitivity
	}
	if in.IsAnonymous != nil {
		updates["is_anonymous"] = *in.IsAnonymous
		changes["isAnonymous"] = *in.IsAnonymous
	}
	if in.Status != nil {
		normalized, ok := models.NormalizeStatus(*in.Status)
		if !ok {
			return nil, fmt.Errorf("unknown status %q: %w", *in.Status, apperr.ErrBadInput)
		}
		updates["status"] = normalized
		changes["status"] = normalized
	}
	if len(in.Metadata) > 0 {
		merged := mergeMetadata(booking.Metadata, in.Metadata)
		updates["metadata"] = datatypes.JSONMap(merged)
		changes["metadataKeys"] = mapKeys(in.Metadata)
	}

	// The calendar-facing description follows the fields it derives from.
	if in.Description != nil || in.Sensitivity != nil || in.IsAnonymous != nil {
		description := booking.Description
		if in.Description != nil {
			description = *in.Description
		}
		sensitivity := booking.Sensitivity
		if in.Sensitivity != nil {
			sensitivity = *in.Sensitivity
		}
		anonymous := booking.IsAnonymous
		if in.IsAnonymous != nil {
			anonymous = *in.IsAnonymous
		}
		updates["redacted_description"] = redactDescription(description, sensitivity, anonymous)
	}

	if len(updates) > 0 {
		if err := s.db.Model(booking).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	if err := s.audit.Record(audit.ActionUpdate, audit.EntityBooking, &booking.ID, userID, &booking.ID, map[string]interface{}{
		"calBookingId": booking.CalBookingID,
		"changes":      changes,
	}); err != nil {
		return nil, err
	}

	return s.fetchOwned(bookingID, userID, true)
}

// Delete hard-deletes the booking. The DELETE audit entry is written
// after the removal commits; audit rows have no FK so the entry keeps
// referencing the now-gone id.
func (s *BookingService) Delete(bookingID, userID uuid.UUID) error {
	booking, err := s.fetchOwned(bookingID, userID, false)
	if err != nil {
		return err
	}

	if err := s.db.Delete(&models.Booking{}, "id = ?", booking.ID).Error; err != nil {
		return err
	}

	return s.audit.Record(audit.ActionDelete, audit.EntityBooking, &booking.ID, userID, &booking.ID, map[string]interface{}{
		"calBookingId": booking.CalBookingID,
		"title":        booking.Title,
	})
}

// GetSecureNotes decrypts the intake payload. An empty payload returns
// "" with no audit entry; a decryption failure surfaces as BadInput
// ("secure notes unavailable"), never as raw crypto detail.
func (s *BookingService) GetSecureNotes(bookingID, userID uuid.UUID) (string, error) {
	booking, err := s.fetchOwned(bookingID, userID, false)
	if err != nil {
		return "", err
	}

	if booking.EncryptedIntake == "" {
		return "", nil
	}

	plaintext, err := s.codec.Decrypt(booking.EncryptedIntake)
	if err != nil {
		slog.Warn("secure notes decryption failed", "booking_id", booking.ID.String(), "error", err)
		return "", fmt.Errorf("secure notes unavailable: %w", apperr.ErrBadInput)
	}

	if err := s.audit.Record(audit.ActionReadSecureNotes, audit.EntityBooking, &booking.ID, userID, &booking.ID, map[string]interface{}{
		"calBookingId": booking.CalBookingID,
		"hasNotes":     true,
	}); err != nil {
		return "", err
	}

	return plaintext, nil
}

// UpdateSecureNotes encrypts and stores the notes. The audit entry
// carries only a hasNotes flag, never the plaintext.
func (s *BookingService) UpdateSecureNotes(bookingID, userID uuid.UUID, notes string) error {
	booking, err := s.fetchOwned(bookingID, userID, false)
	if err != nil {
		return err
	}

	env, err := s.codec.Encrypt(notes)
	if err != nil {
		return err
	}
	if err := s.db.Model(booking).Update("encrypted_intake", env).Error; err != nil {
		return err
	}

	return s.audit.Record(audit.ActionUpdateSecureNotes, audit.EntityBooking, &booking.ID, userID, &booking.ID, map[string]interface{}{
		"calBookingId": booking.CalBookingID,
		"hasNotes":     len(notes) > 0,
	})
}

// GenerateContextSummary returns the booking's summary, creating it on
// first call. Idempotent: an existing summary is returned unchanged
// with no new audit entry. The unique index on booking_id resolves
// concurrent first calls to a single row.
func (s *BookingService) GenerateContextSummary(bookingID, userID uuid.UUID) (*models.ContextSummary, error) {
	booking, err := s.fetchOwned(bookingID, userID, false)
	if err != nil {
		return nil, err
	}

	var existing models.ContextSummary
	err = s.db.First(&existing, "booking_id = ?", booking.ID).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	plaintext, metadata := s.summaries.Synthesize(booking, time.Now())
	encrypted, err := s.codec.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	summary := models.ContextSummary{
		BookingID:        booking.ID,
		EncryptedSummary: encrypted,
		Metadata:         metadata,
	}
	if err := s.db.Create(&summary).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race; the winner's summary is the summary.
			if err := s.db.First(&existing, "booking_id = ?", booking.ID).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}

	if err := s.audit.Record(audit.ActionGenerateSummary, audit.EntityBooking, &booking.ID, userID, &booking.ID, map[string]interface{}{
		"calBookingId": booking.CalBookingID,
		"summaryId":    summary.ID.String(),
	}); err != nil {
		return nil, err
	}

	// AI enrichment runs out of band; replay is safe because summary
	// creation is first-call-wins.
	if err := s.jobs.Publish(context.Background(), queue.JobGenerateSummary, map[string]interface{}{
		"bookingId": booking.ID.String(),
		"summaryId": summary.ID.String(),
	}); err != nil {
		slog.Error("failed to publish generate-summary job", "booking_id", booking.ID.String(), "error", err)
	}

	return &summary, nil
}

// AuditTrail returns the booking's audit entries, newest first, after
// the usual ownership check. Reading the trail is not itself audited.
func (s *BookingService) AuditTrail(bookingID, userID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if _, err := s.fetchOwned(bookingID, userID, false); err != nil {
		return nil, err
	}
	return s.audit.ListForBooking(bookingID, limit)
}

// GetStats aggregates the owner's bookings at query-time wall clock.
// A booking straddling now (start < now < end) counts as neither
// upcoming nor past; that boundary is the existing contract.
func (s *BookingService) GetStats(userID uuid.UUID) (*BookingStats, error) {
	now := time.Now()
	weekStart := startOfWeek(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := &BookingStats{
		ByStatus:      map[string]int64{},
		BySensitivity: map[string]int64{},
	}

	base := func() *gorm.DB {
		return s.db.Model(&models.Booking{}).Scopes(forOwner(userID))
	}
	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("start_time >= ?", now).Count(&stats.Upcoming).Error; err != nil {
		return nil, err
	}
	if err := base().Where("end_time < ?", now).Count(&stats.Past).Error; err != nil {
		return nil, err
	}
	if err := base().Where("start_time >= ? AND start_time < ?", weekStart, weekStart.AddDate(0, 0, 7)).Count(&stats.ThisWeek).Error; err != nil {
		return nil, err
	}
	if err := base().Where("start_time >= ? AND start_time < ?", monthStart, monthStart.AddDate(0, 1, 0)).Count(&stats.ThisMonth).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var byStatus []bucket
	if err := base().Select("status AS key, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Count
	}
	var bySensitivity []bucket
	if err := base().Select("sensitivity AS key, COUNT(*) AS count").Group("sensitivity").Scan(&bySensitivity).Error; err != nil {
		return nil, err
	}
	for _, b := range bySensitivity {
		stats.BySensitivity[b.Key] = b.Count
	}

	if err := s.audit.Record(audit.ActionReadStats, audit.EntityBooking, nil, userID, nil, map[string]interface{}{}); err != nil {
		return nil, err
	}

	return stats, nil
}

func attendeeProjections(attendees []models.Attendee) ([]string, []string) {
	emails := make([]string, 0, len(attendees))
	names := make([]string, 0, len(attendees))
	for _, a := range attendees {
		emails = append(emails, a.Email)
		names = append(names, a.Name)
	}
	return emails, names
}

// redactDescription is the description external calendar events see:
// High sensitivity and anonymous bookings never expose the real one.
func redactDescription(description, sensitivity string, anonymous bool) string {
	if anonymous || sensitivity == models.SensitivityHigh {
		return "Private appointment"
	}
	return description
}

func durationMinutes(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

func mergeMetadata(existing, incoming map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

func mapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Week starts on Sunday, matching the dashboard's calendar.
func startOfWeek(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}
