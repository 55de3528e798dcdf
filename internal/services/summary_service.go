package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/churchhub/churchhub-api/internal/models"
)

// SummarySynthesizer produces the rule-based context summary for a
// booking: one or two strictly factual sentences plus the non-sensitive
// metadata shape stored beside the ciphertext. AI enrichment happens
// later via the generate-summary job; this output is the baseline.
type SummarySynthesizer struct{}

func NewSummarySynthesizer() *SummarySynthesizer {
	return &SummarySynthesizer{}
}

// Synthesize returns the plaintext summary and its metadata. The
// plaintext is encrypted by the caller before persisting; metadata must
// never contain intake content.
func (s *SummarySynthesizer) Synthesize(booking *models.Booking, now time.Time) (string, map[string]interface{}) {
	topic := booking.EventTypeTitle
	if topic == "" {
		topic = booking.Title
	}

	participants := make([]string, len(booking.AttendeeNames))
	copy(participants, booking.AttendeeNames)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d-minute %s", booking.Duration, topic)
	if len(participants) > 0 && !booking.IsAnonymous {
		fmt.Fprintf(&sb, " with %s", strings.Join(participants, ", "))
	}
	if booking.Location != "" {
		fmt.Fprintf(&sb, " at %s", booking.Location)
	}
	fmt.Fprintf(&sb, " on %s.", booking.StartTime.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	plaintext := sb.String()

	if booking.IsAnonymous {
		participants = []string{}
	}

	sensitivity := booking.Sensitivity
	if sensitivity == "" {
		sensitivity = models.SensitivityMedium
	}
	location := booking.Location
	if location == "" {
		location = "Unknown"
	}

	metadata := map[string]interface{}{
		"topic":        topic,
		"participants": participants,
		"sensitivity":  sensitivity,
		"location":     location,
		"when":         booking.StartTime.UTC().Format(time.RFC3339),
		"duration":     booking.Duration,
		"plainText":    plaintext,
		"generatedAt":  now.UTC().Format(time.RFC3339),
		"method":       "rule-based",
	}
	return plaintext, metadata
}
