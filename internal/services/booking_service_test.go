package services

import (
	"testing"
	"time"

	"github.com/churchhub/churchhub-api/internal/apperr"
	"github.com/churchhub/churchhub-api/internal/audit"
	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/churchhub/churchhub-api/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseCreateInput(calID int64) CreateBookingInput {
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	return CreateBookingInput{
		CalBookingID:  calID,
		CalBookingUID: uuid.NewString(),
		Title:         "Pastoral counseling",
		StartTime:     start,
		EndTime:       start.Add(45 * time.Minute),
		TimeZone:      "Europe/Berlin",
		Location:      "Church office",
		Attendees: []models.Attendee{
			{Email: "maria@example.org", Name: "Maria", TimeZone: "Europe/Berlin"},
		},
	}
}

func TestCreateBooking(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1001))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, booking.ID)
	assert.Equal(t, owner.ID, booking.UserID)
	assert.Equal(t, 45, booking.Duration)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, models.SensitivityMedium, booking.Sensitivity)
	assert.Equal(t, []string{"maria@example.org"}, []string(booking.AttendeeEmails))
	assert.Equal(t, []string{"Maria"}, []string(booking.AttendeeNames))

	entries := env.auditEntries(t, audit.ActionCreate)
	require.Len(t, entries, 1)
	assert.Equal(t, owner.ID, entries[0].UserID)
	require.NotNil(t, entries[0].BookingID)
	assert.Equal(t, booking.ID, *entries[0].BookingID)
}

func TestCreateBookingUnknownOwner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.bookings.Create(uuid.New(), baseCreateInput(1002))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateBookingDuplicateExternalID(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	_, err := env.bookings.Create(owner.ID, baseCreateInput(1003))
	require.NoError(t, err)

	_, err = env.bookings.Create(owner.ID, baseCreateInput(1003))
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestCreateBookingValidatesVocabulary(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	in := baseCreateInput(1004)
	in.Status = "launched"
	_, err := env.bookings.Create(owner.ID, in)
	assert.ErrorIs(t, err, apperr.ErrBadInput)

	in = baseCreateInput(1004)
	in.Sensitivity = "Critical"
	_, err = env.bookings.Create(owner.ID, in)
	assert.ErrorIs(t, err, apperr.ErrBadInput)
}

func TestCreateBookingNormalizesPlatformStatus(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	in := baseCreateInput(1005)
	in.Status = "ACCEPTED"
	booking, err := env.bookings.Create(owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
}

func TestGetByIDOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")
	intruder := env.createUser(t, "pastor-eva")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1010))
	require.NoError(t, err)

	got, err := env.bookings.GetByID(booking.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	_, err = env.bookings.GetByID(booking.ID, intruder.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = env.bookings.GetByID(uuid.New(), owner.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// One READ entry for the successful fetch, none for the denials.
	assert.Len(t, env.auditEntries(t, audit.ActionRead), 1)
}

func TestListFiltersAndTotal(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")
	other := env.createUser(t, "pastor-eva")

	for i, status := range []string{"pending", "confirmed", "confirmed"} {
		in := baseCreateInput(int64(1100 + i))
		in.Status = status
		in.StartTime = time.Now().Add(time.Duration(i+1) * 24 * time.Hour)
		in.EndTime = in.StartTime.Add(30 * time.Minute)
		_, err := env.bookings.Create(owner.ID, in)
		require.NoError(t, err)
	}
	_, err := env.bookings.Create(other.ID, baseCreateInput(1200))
	require.NoError(t, err)

	all, total, err := env.bookings.List(owner.ID, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), total)
	// Ordered by start time descending.
	assert.True(t, all[0].StartTime.After(all[1].StartTime))

	confirmed, total, err := env.bookings.List(owner.ID, ListOptions{Status: "confirmed"})
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)
	assert.Equal(t, int64(2), total)

	paged, total, err := env.bookings.List(owner.ID, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
	assert.Equal(t, int64(3), total, "total ignores limit and offset")

	entries := env.auditEntries(t, audit.ActionReadList)
	assert.Len(t, entries, 3)
}

func TestUpdateBooking(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	in := baseCreateInput(1300)
	in.Metadata = map[string]interface{}{"source": "manual", "room": "A"}
	booking, err := env.bookings.Create(owner.ID, in)
	require.NoError(t, err)

	title := "Renamed session"
	status := "completed"
	updated, err := env.bookings.Update(booking.ID, owner.ID, UpdateBookingInput{
		Title:    &title,
		Status:   &status,
		Metadata: map[string]interface{}{"room": "B", "followUp": true},
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed session", updated.Title)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	// Metadata merges key-wise instead of replacing.
	assert.Equal(t, "manual", updated.Metadata["source"])
	assert.Equal(t, "B", updated.Metadata["room"])
	assert.Equal(t, true, updated.Metadata["followUp"])

	// External identity and scheduling facts are immutable here.
	assert.Equal(t, booking.CalBookingID, updated.CalBookingID)
	assert.Equal(t, booking.StartTime.Unix(), updated.StartTime.Unix())

	entries := env.auditEntries(t, audit.ActionUpdate)
	require.Len(t, entries, 1)
}

func TestUpdateBookingRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1301))
	require.NoError(t, err)

	bad := "ARCHIVED"
	_, err = env.bookings.Update(booking.ID, owner.ID, UpdateBookingInput{Status: &bad})
	assert.ErrorIs(t, err, apperr.ErrBadInput)
}

func TestDeleteBookingKeepsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1400))
	require.NoError(t, err)

	require.NoError(t, env.bookings.Delete(booking.ID, owner.ID))

	_, err = env.bookings.GetByID(booking.ID, owner.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// The trail survives the booking, still referencing the gone id.
	deletes := env.auditEntries(t, audit.ActionDelete)
	require.Len(t, deletes, 1)
	require.NotNil(t, deletes[0].BookingID)
	assert.Equal(t, booking.ID, *deletes[0].BookingID)
	assert.Len(t, env.auditEntries(t, audit.ActionCreate), 1)
}

func TestSecureNotesRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1500))
	require.NoError(t, err)

	// Empty payload: empty string, no audit entry.
	notes, err := env.bookings.GetSecureNotes(booking.ID, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Empty(t, env.auditEntries(t, audit.ActionReadSecureNotes))

	require.NoError(t, env.bookings.UpdateSecureNotes(booking.ID, owner.ID, "confidential"))

	// Stored ciphertext never contains the plaintext.
	var stored models.Booking
	require.NoError(t, env.db.First(&stored, "id = ?", booking.ID).Error)
	assert.NotEmpty(t, stored.EncryptedIntake)
	assert.NotContains(t, stored.EncryptedIntake, "confidential")

	notes, err = env.bookings.GetSecureNotes(booking.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "confidential", notes)

	reads := env.auditEntries(t, audit.ActionReadSecureNotes)
	require.Len(t, reads, 1)
	assert.Equal(t, true, reads[0].Metadata["hasNotes"])

	writes := env.auditEntries(t, audit.ActionUpdateSecureNotes)
	require.Len(t, writes, 1)
	// The audit entry records only that notes exist, never content.
	assert.NotContains(t, writes[0].Metadata, "notes")
}

func TestSecureNotesCorruptedCiphertext(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1501))
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Booking{}).Where("id = ?", booking.ID).
		Update("encrypted_intake", "not an envelope").Error)

	_, err = env.bookings.GetSecureNotes(booking.ID, owner.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrBadInput)
	assert.Contains(t, err.Error(), "secure notes unavailable")
}

func TestSecureNotesOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")
	intruder := env.createUser(t, "pastor-eva")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1502))
	require.NoError(t, err)
	require.NoError(t, env.bookings.UpdateSecureNotes(booking.ID, owner.ID, "confidential"))

	_, err = env.bookings.GetSecureNotes(booking.ID, intruder.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	err = env.bookings.UpdateSecureNotes(booking.ID, intruder.ID, "overwritten")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGenerateContextSummaryIdempotent(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1600))
	require.NoError(t, err)

	first, err := env.bookings.GenerateContextSummary(booking.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, first.BookingID)
	assert.NotEmpty(t, first.EncryptedSummary)
	assert.Equal(t, "rule-based", first.Metadata["method"])

	// The stored summary decrypts to the synthesized plaintext.
	plaintext, err := env.codec.Decrypt(first.EncryptedSummary)
	require.NoError(t, err)
	assert.Equal(t, first.Metadata["plainText"], plaintext)

	second, err := env.bookings.GenerateContextSummary(booking.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, env.db.Model(&models.ContextSummary{}).Where("booking_id = ?", booking.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// One audit entry and one enrichment job for the single creation.
	assert.Len(t, env.auditEntries(t, audit.ActionGenerateSummary), 1)
	var summaryJobs int
	for _, j := range env.jobs.published() {
		if j.Job == queue.JobGenerateSummary {
			summaryJobs++
		}
	}
	assert.Equal(t, 1, summaryJobs)
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")
	now := time.Now()

	mk := func(calID int64, start, end time.Time, status string) {
		in := baseCreateInput(calID)
		in.StartTime = start
		in.EndTime = end
		in.Status = status
		_, err := env.bookings.Create(owner.ID, in)
		require.NoError(t, err)
	}

	mk(1700, now.Add(2*time.Hour), now.Add(3*time.Hour), "confirmed")
	mk(1701, now.Add(-3*time.Hour), now.Add(-2*time.Hour), "completed")
	// Straddles now: counts as neither upcoming nor past.
	mk(1702, now.Add(-30*time.Minute), now.Add(30*time.Minute), "confirmed")

	stats, err := env.bookings.GetStats(owner.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Upcoming)
	assert.Equal(t, int64(1), stats.Past)
	assert.Equal(t, int64(2), stats.ByStatus["confirmed"])
	assert.Equal(t, int64(1), stats.ByStatus["completed"])
	assert.Equal(t, int64(3), stats.BySensitivity[models.SensitivityMedium])

	assert.Len(t, env.auditEntries(t, audit.ActionReadStats), 1)
}

func TestCreateBookingRedactsDescription(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	in := baseCreateInput(1800)
	in.Description = "Grief counseling for Maria"
	booking, err := env.bookings.Create(owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Grief counseling for Maria", booking.RedactedDescription)

	in = baseCreateInput(1801)
	in.Description = "Grief counseling for Maria"
	in.Sensitivity = models.SensitivityHigh
	booking, err = env.bookings.Create(owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Private appointment", booking.RedactedDescription)

	in = baseCreateInput(1802)
	in.Description = "Grief counseling for Maria"
	in.IsAnonymous = true
	booking, err = env.bookings.Create(owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Private appointment", booking.RedactedDescription)
}

func TestUpdateBookingRecomputesRedactedDescription(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	in := baseCreateInput(1803)
	in.Description = "Marriage preparation"
	booking, err := env.bookings.Create(owner.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Marriage preparation", booking.RedactedDescription)

	high := models.SensitivityHigh
	updated, err := env.bookings.Update(booking.ID, owner.ID, UpdateBookingInput{Sensitivity: &high})
	require.NoError(t, err)
	assert.Equal(t, "Private appointment", updated.RedactedDescription)

	low := models.SensitivityLow
	updated, err = env.bookings.Update(booking.ID, owner.ID, UpdateBookingInput{Sensitivity: &low})
	require.NoError(t, err)
	assert.Equal(t, "Marriage preparation", updated.RedactedDescription)
}

func TestGetByIDPreloadsRelations(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1810))
	require.NoError(t, err)

	response := models.FormResponse{
		BookingID:     booking.ID,
		EncryptedData: "envelope",
	}
	require.NoError(t, env.db.Create(&response).Error)
	_, err = env.bookings.GenerateContextSummary(booking.ID, owner.ID)
	require.NoError(t, err)

	got, err := env.bookings.GetByID(booking.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, got.FormResponses, 1)
	assert.Equal(t, response.ID, got.FormResponses[0].ID)
	require.Len(t, got.ContextSummaries, 1)
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "pastor-jan")
	intruder := env.createUser(t, "pastor-eva")

	booking, err := env.bookings.Create(owner.ID, baseCreateInput(1820))
	require.NoError(t, err)
	title := "Renamed"
	_, err = env.bookings.Update(booking.ID, owner.ID, UpdateBookingInput{Title: &title})
	require.NoError(t, err)

	entries, err := env.bookings.AuditTrail(booking.ID, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	actions := []string{entries[0].Action, entries[1].Action}
	assert.Contains(t, actions, audit.ActionCreate)
	assert.Contains(t, actions, audit.ActionUpdate)

	// Reading the trail leaves no READ entry of its own.
	again, err := env.bookings.AuditTrail(booking.ID, owner.ID, 0)
	require.NoError(t, err)
	assert.Len(t, again, 2)

	limited, err := env.bookings.AuditTrail(booking.ID, owner.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = env.bookings.AuditTrail(booking.ID, intruder.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDurationMinutesRounds(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 45, durationMinutes(start, start.Add(45*time.Minute)))
	assert.Equal(t, 30, durationMinutes(start, start.Add(30*time.Minute+20*time.Second)))
	assert.Equal(t, 31, durationMinutes(start, start.Add(30*time.Minute+40*time.Second)))
}
