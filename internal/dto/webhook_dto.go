package dto

import "time"

// CalBookingPayload is the booking body of a Cal platform lifecycle
// webhook. Payloads are validated at ingestion; anything missing the
// external id or uid is rejected before persistence.
type CalBookingPayload struct {
	ID          int64                  `json:"id"`
	UID         string                 `json:"uid"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	StartTime   time.Time              `json:"startTime"`
	EndTime     time.Time              `json:"endTime"`
	Attendees   []CalAttendee          `json:"attendees"`
	User        CalPlatformUser        `json:"user"`
	EventType   CalEventType           `json:"eventType"`
	Location    string                 `json:"location"`
	Status      string                 `json:"status"`
	Responses   map[string]interface{} `json:"responses"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type CalAttendee struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	TimeZone string `json:"timeZone"`
}

// CalPlatformUser is the schedule owner embedded in the webhook event.
type CalPlatformUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	TimeZone string `json:"timeZone"`
}

type CalEventType struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}
