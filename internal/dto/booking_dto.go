package dto

import (
	"time"

	"github.com/churchhub/churchhub-api/internal/models"
)

type CreateBookingRequest struct {
	CalBookingID   int64                  `json:"cal_booking_id"`
	CalBookingUID  string                 `json:"cal_booking_uid"`
	EventTypeID    int64                  `json:"event_type_id"`
	EventTypeTitle string                 `json:"event_type_title"`
	EventTypeSlug  string                 `json:"event_type_slug"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	StartTime      time.Time              `json:"start_time"`
	EndTime        time.Time              `json:"end_time"`
	TimeZone       string                 `json:"time_zone"`
	Location       string                 `json:"location"`
	Attendees      []models.Attendee      `json:"attendees"`
	Sensitivity    string                 `json:"sensitivity"`
	IsAnonymous    bool                   `json:"is_anonymous"`
	ProviderIDs    map[string]interface{} `json:"provider_ids"`
	Metadata       map[string]interface{} `json:"metadata"`
	Status         string                 `json:"status"`
}

type UpdateBookingRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Sensitivity *string                `json:"sensitivity"`
	IsAnonymous *bool                  `json:"is_anonymous"`
	Status      *string                `json:"status"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type BookingListResponse struct {
	Bookings []models.Booking `json:"bookings"`
	Total    int64            `json:"total"`
}

type SecureNotesResponse struct {
	Notes string `json:"notes"`
}

type UpdateSecureNotesRequest struct {
	Notes string `json:"notes"`
}

type ProvisionUserRequest struct {
	Username    string                 `json:"username"`
	Email       string                 `json:"email"`
	DisplayName string                 `json:"display_name"`
	CalUserID   *int64                 `json:"cal_user_id"`
	Password    string                 `json:"password,omitempty"`
	Preferences map[string]interface{} `json:"preferences"`
}

type PurgeAuditLogsResponse struct {
	Deleted int64 `json:"deleted"`
}

type AuditTrailResponse struct {
	Entries []models.AuditLog `json:"entries"`
}
