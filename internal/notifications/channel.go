package notifications

import "context"

// Outcome statuses.
const (
	StatusOK        = "ok"
	StatusDelivered = "delivered"
	StatusSkipped   = "skipped"
	StatusError     = "error"
)

// Outcome reasons.
const (
	ReasonNoRecipients       = "no_recipients"
	ReasonStubNotImplemented = "stub_not_implemented"
	ReasonTimeout            = "timeout"
)

// Channel names.
const (
	ChannelEventLog   = "event_log"
	ChannelInbox      = "in_app"
	ChannelWebPush    = "web_push"
	ChannelMobilePush = "mobile_push"
	ChannelRealtime   = "realtime"
	ChannelKafka      = "kafka"
)

// Outcome reports what a single channel did with an event.
type Outcome struct {
	Channel        string         `json:"channel"`
	Status         string         `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	Error          string         `json:"error,omitempty"`
	RecipientCount int            `json:"recipient_count"`
	Details        map[string]any `json:"details,omitempty"`
}

// Channel delivers an event to one destination. Returned errors are converted into an
// error Outcome by the Service and never reach the publisher.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event Event, recipients []string) (Outcome, error)
}
