// Package notifications fans a single logical event out to independent delivery
// channels and manages the per-user inbox those channels populate.
package notifications

import (
	"strings"
	"time"

	"github.com/charlesng35/smartpost/internal/docstore"
	apperrors "github.com/charlesng35/smartpost/pkg/errors"
)

// SchemaVersion is stamped on every event payload.
const SchemaVersion = 1

// Severity classifies an event for presentation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// ParseSeverity validates a severity value. An empty value defaults to info.
func ParseSeverity(value string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case "", SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityError:
		return SeverityError, nil
	case SeveritySuccess:
		return SeveritySuccess, nil
	}
	return "", apperrors.NewBadRequest("severity must be one of info, warning, error, success")
}

// Event is the immutable payload shared by every channel for one publish call.
type Event struct {
	ID              string         `json:"event_id"`
	SchemaVersion   int            `json:"schema_version"`
	Type            string         `json:"type"`
	Title           string         `json:"title"`
	Body            string         `json:"body"`
	Severity        Severity       `json:"severity"`
	Actor           string         `json:"actor"`
	DeviceID        string         `json:"device_id,omitempty"`
	Data            map[string]any `json:"data"`
	CreatedAtClient time.Time      `json:"created_at_client"`
}

// Fields renders the event as document fields. The returned map is a fresh copy.
func (e Event) Fields() map[string]any {
	var deviceID any
	if e.DeviceID != "" {
		deviceID = e.DeviceID
	}
	return map[string]any{
		"event_id":          e.ID,
		"schema_version":    e.SchemaVersion,
		"type":              e.Type,
		"title":             e.Title,
		"body":              e.Body,
		"severity":          string(e.Severity),
		"actor":             e.Actor,
		"device_id":         deviceID,
		"data":              copyData(e.Data),
		"created_at_client": docstore.FormatTime(e.CreatedAtClient),
	}
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = value
	}
	return out
}

// Document paths shared by the channels and the inbox manager.
const (
	EventLogCollection = "notification_events"
)

// InboxCollection returns the collection holding recipient's inbox entries.
func InboxCollection(recipient string) string {
	return "users/" + recipient + "/notifications"
}
