package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/churchhub/churchhub-api/internal/apperr"
	"github.com/churchhub/churchhub-api/internal/audit"
	"github.com/churchhub/churchhub-api/internal/crypto"
	"github.com/churchhub/churchhub-api/internal/dto"
	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/churchhub/churchhub-api/internal/queue"
	"github.com/churchhub/churchhub-api/internal/usercache"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookService reconciles Cal platform lifecycle events into booking
// rows. Both handlers are idempotent: a replayed created event becomes
// an update, an updated event for an unseen id becomes a create.
type WebhookService struct {
	db    *gorm.DB
	codec *crypto.Codec
	audit *audit.Recorder
	users *usercache.Cache
	jobs  queue.Publisher
}

func NewWebhookService(db *gorm.DB, codec *crypto.Codec, recorder *audit.Recorder, users *usercache.Cache, jobs queue.Publisher) *WebhookService {
	return &WebhookService{
		db:    db,
		codec: codec,
		audit: recorder,
		users: users,
		jobs:  jobs,
	}
}

// HandleBookingCreated ingests a booking.created event. An already-seen
// external id is treated as an update, never as a duplicate or an
// error, so the platform can replay deliveries freely.
func (s *WebhookService) HandleBookingCreated(payload *dto.CalBookingPayload) (*models.Booking, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	owner, err := s.resolveOwner(&payload.User)
	if err != nil {
		return nil, err
	}

	var existing models.Booking
	err = s.db.First(&existing, "cal_booking_id = ?", payload.ID).Error
	if err == nil {
		return s.applyUpdate(&existing, payload)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	status, err := statusFromPayload(payload.Status)
	if err != nil {
		return nil, err
	}

	attendees := convertAttendees(payload.Attendees)
	emails, names := attendeeProjections(attendees)

	booking := models.Booking{
		CalBookingID:   payload.ID,
		CalBookingUID:  payload.UID,
		UserID:         owner.ID,
		EventTypeID:    payload.EventType.ID,
		EventTypeTitle: payload.EventType.Title,
		EventTypeSlug:  payload.EventType.Slug,
		Title:          payload.Title,
		Description:    payload.Description,
		StartTime:      payload.StartTime,
		EndTime:        payload.EndTime,
		TimeZone:       payload.User.TimeZone,
		Duration:       durationMinutes(payload.StartTime, payload.EndTime),
		Location:       payload.Location,
		Attendees:      attendees,
		AttendeeEmails: emails,
		AttendeeNames:  names,
		Sensitivity:    models.SensitivityMedium,
		Metadata:       ingestMetadata(nil, payload),
		Status:         status,

		RedactedDescription: redactDescription(payload.Description, models.SensitivityMedium, false),
	}

	if len(payload.Responses) > 0 {
		encrypted, err := s.encryptResponses(payload.Responses)
		if err != nil {
			return nil, err
		}
		booking.EncryptedIntake = encrypted
	}

	if err := s.db.Create(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a replay race; converge on the surviving row.
			if err := s.db.First(&existing, "cal_booking_id = ?", payload.ID).Error; err != nil {
				return nil, err
			}
			return s.applyUpdate(&existing, payload)
		}
		return nil, err
	}

	if booking.EncryptedIntake != "" {
		if err := s.storeFormResponse(&booking, booking.EncryptedIntake, payload.Responses); err != nil {
			return nil, err
		}
	}

	if err := s.audit.Record(audit.ActionBookingCreated, audit.EntityBooking, &booking.ID, owner.ID, &booking.ID, map[string]interface{}{
		"calBookingId":  payload.ID,
		"calBookingUid": payload.UID,
		"eventTypeId":   payload.EventType.ID,
	}); err != nil {
		return nil, err
	}

	s.scheduleReminder(&booking)

	return &booking, nil
}

// HandleBookingUpdated ingests a booking.updated event. An unseen
// external id falls back to the create path, self-healing against a
// missed created delivery.
func (s *WebhookService) HandleBookingUpdated(payload *dto.CalBookingPayload) (*models.Booking, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	var existing models.Booking
	err := s.db.First(&existing, "cal_booking_id = ?", payload.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.HandleBookingCreated(payload)
	}
	if err != nil {
		return nil, err
	}

	return s.applyUpdate(&existing, payload)
}

// applyUpdate merges incoming scheduling facts over an existing row.
// Metadata is merged key-wise; intake responses only overwrite when the
// event actually carries them, so notes written through the API survive
// status-only updates.
func (s *WebhookService) applyUpdate(booking *models.Booking, payload *dto.CalBookingPayload) (*models.Booking, error) {
	status, err := statusFromPayload(payload.Status)
	if err != nil {
		return nil, err
	}

	attendees := convertAttendees(payload.Attendees)
	emails, names := attendeeProjections(attendees)

	updates := map[string]interface{}{
		"cal_booking_uid":  payload.UID,
		"event_type_id":    payload.EventType.ID,
		"event_type_title": payload.EventType.Title,
		"event_type_slug":  payload.EventType.Slug,
		"title":            payload.Title,
		"description":      payload.Description,
		"start_time":       payload.StartTime,
		"end_time":         payload.EndTime,
		"duration":         durationMinutes(payload.StartTime, payload.EndTime),
		"location":         payload.Location,
		"attendees":        datatypes.NewJSONSlice(attendees),
		"attendee_emails":  datatypes.NewJSONSlice(emails),
		"attendee_names":   datatypes.NewJSONSlice(names),
		"metadata":         datatypes.JSONMap(ingestMetadata(booking.Metadata, payload)),
		"status":           status,

		"redacted_description": redactDescription(payload.Description, booking.Sensitivity, booking.IsAnonymous),
	}

	var intake string
	if len(payload.Responses) > 0 {
		encrypted, err := s.encryptResponses(payload.Responses)
		if err != nil {
			return nil, err
		}
		updates["encrypted_intake"] = encrypted
		intake = encrypted
	}

	if err := s.db.Model(booking).Updates(updates).Error; err != nil {
		return nil, err
	}

	if intake != "" {
		if err := s.storeFormResponse(booking, intake, payload.Responses); err != nil {
			return nil, err
		}
	}

	if err := s.audit.Record(audit.ActionBookingUpdated, audit.EntityBooking, &booking.ID, booking.UserID, &booking.ID, map[string]interface{}{
		"calBookingId": payload.ID,
		"status":       status,
	}); err != nil {
		return nil, err
	}

	var updated models.Booking
	if err := s.db.First(&updated, "id = ?", booking.ID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

// resolveOwner maps the event's embedded Cal user to an internal user,
// creating one on first sight. Lookups go through the Redis
// read-through cache when configured.
func (s *WebhookService) resolveOwner(calUser *dto.CalPlatformUser) (*models.User, error) {
	ctx := context.Background()

	if id, ok := s.users.Get(ctx, calUser.ID); ok {
		var user models.User
		if err := s.db.First(&user, "id = ?", id).Error; err == nil {
			return &user, nil
		}
		s.users.Invalidate(ctx, calUser.ID)
	}

	var user models.User
	err := s.db.First(&user, "cal_user_id = ?", calUser.ID).Error
	if err == nil {
		s.users.Set(ctx, calUser.ID, user.ID)
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	calID := calUser.ID
	username := calUser.Username
	if username == "" {
		username = fmt.Sprintf("cal-user-%d", calID)
	}
	user = models.User{
		CalUserID:   &calID,
		Username:    username,
		Email:       calUser.Email,
		DisplayName: calUser.Name,
		IsActive:    true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent ingestion created the owner first.
			if err := s.db.First(&user, "cal_user_id = ?", calUser.ID).Error; err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	slog.Info("provisioned owner from webhook", "cal_user_id", calUser.ID, "user_id", user.ID.String())

	s.users.Set(ctx, calUser.ID, user.ID)
	return &user, nil
}

// storeFormResponse upserts the booking's intake submission. One row
// per booking keeps webhook replays idempotent; a resubmission replaces
// the previous answers. RedactedData holds only the question keys.
func (s *WebhookService) storeFormResponse(booking *models.Booking, encrypted string, responses map[string]interface{}) error {
	metadata := datatypes.JSONMap{
		"submittedAt": time.Now().UTC().Format(time.RFC3339),
		"isAnonymous": booking.IsAnonymous,
		"source":      "cal-webhook",
	}
	redacted := datatypes.JSONMap{"fields": mapKeys(responses)}

	var existing models.FormResponse
	err := s.db.First(&existing, "booking_id = ?", booking.ID).Error
	switch {
	case err == nil:
		return s.db.Model(&existing).Updates(map[string]interface{}{
			"encrypted_data": encrypted,
			"metadata":       metadata,
			"redacted_data":  redacted,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(&models.FormResponse{
			BookingID:     booking.ID,
			EncryptedData: encrypted,
			Metadata:      metadata,
			RedactedData:  redacted,
		}).Error
	default:
		return err
	}
}

// encryptResponses stores intake questionnaire answers encrypted at
// rest, never plaintext.
func (s *WebhookService) encryptResponses(responses map[string]interface{}) (string, error) {
	raw, err := json.Marshal(responses)
	if err != nil {
		return "", fmt.Errorf("marshal intake responses: %w", err)
	}
	return s.codec.Encrypt(string(raw))
}

// scheduleReminder publishes a send-reminder job for confirmed future
// bookings. Publish failures are logged, not fatal; the worker tolerates
// missing reminders better than the platform tolerates webhook 500s.
func (s *WebhookService) scheduleReminder(booking *models.Booking) {
	if booking.Status != models.StatusConfirmed || !booking.StartTime.After(time.Now()) {
		return
	}
	if err := s.jobs.Publish(context.Background(), queue.JobSendReminder, map[string]interface{}{
		"bookingId": booking.ID.String(),
		"startTime": booking.StartTime.UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Error("failed to publish send-reminder job", "booking_id", booking.ID.String(), "error", err)
	}
}

func validatePayload(payload *dto.CalBookingPayload) error {
	if payload.ID == 0 {
		return fmt.Errorf("webhook payload missing booking id: %w", apperr.ErrBadInput)
	}
	if payload.UID == "" {
		return fmt.Errorf("webhook payload missing booking uid: %w", apperr.ErrBadInput)
	}
	if payload.User.ID == 0 {
		return fmt.Errorf("webhook payload missing owner: %w", apperr.ErrBadInput)
	}
	return nil
}

// statusFromPayload translates the platform vocabulary to the canonical
// one. Unknown values are rejected rather than trusted through the
// pipeline.
func statusFromPayload(status string) (string, error) {
	if status == "" {
		return models.StatusPending, nil
	}
	normalized, ok := models.NormalizeStatus(status)
	if !ok {
		return "", fmt.Errorf("unknown booking status %q: %w", status, apperr.ErrBadInput)
	}
	return normalized, nil
}

// ingestMetadata merges event metadata key-wise over what is already
// stored and preserves the raw platform status for traceability.
func ingestMetadata(existing map[string]interface{}, payload *dto.CalBookingPayload) map[string]interface{} {
	merged := mergeMetadata(existing, payload.Metadata)
	if payload.Status != "" {
		merged["externalStatus"] = payload.Status
	}
	return merged
}

func convertAttendees(in []dto.CalAttendee) []models.Attendee {
	out := make([]models.Attendee, 0, len(in))
	for _, a := range in {
		out = append(out, models.Attendee{Email: a.Email, Name: a.Name, TimeZone: a.TimeZone})
	}
	return out
}
