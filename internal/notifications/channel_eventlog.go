package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/charlesng35/smartpost/internal/docstore"
)

// EventLogChannel writes one audit record per event id into notification_events.
type EventLogChannel struct {
	store docstore.Store
}

// NewEventLogChannel constructs the audit log channel.
func NewEventLogChannel(store docstore.Store) (*EventLogChannel, error) {
	if store == nil {
		return nil, errors.New("event log channel: store is required")
	}
	return &EventLogChannel{store: store}, nil
}

// Name implements Channel.
func (c *EventLogChannel) Name() string { return ChannelEventLog }

// Deliver overwrites notification_events/{event_id}.
func (c *EventLogChannel) Deliver(ctx context.Context, event Event, recipients []string) (Outcome, error) {
	doc := event.Fields()
	doc["recipients"] = append([]string(nil), recipients...)
	doc["logged_at"] = docstore.ServerTimestamp

	if err := c.store.Set(ctx, EventLogCollection, event.ID, doc); err != nil {
		return Outcome{}, fmt.Errorf("event log: write %s: %w", event.ID, err)
	}
	return Outcome{
		Channel:        ChannelEventLog,
		Status:         StatusOK,
		RecipientCount: len(recipients),
	}, nil
}
