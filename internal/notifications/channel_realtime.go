package notifications

import (
	"context"
	"errors"

	"github.com/charlesng35/smartpost/internal/realtime"
)

// Broadcaster pushes messages to connected websocket clients.
type Broadcaster interface {
	BroadcastToUsers(stream string, userIDs []string, message realtime.Message) int
}

// RealtimeChannel announces new inbox entries to connected clients.
type RealtimeChannel struct {
	hub Broadcaster
}

// NewRealtimeChannel constructs the websocket channel.
func NewRealtimeChannel(hub Broadcaster) (*RealtimeChannel, error) {
	if hub == nil {
		return nil, errors.New("realtime channel: hub is required")
	}
	return &RealtimeChannel{hub: hub}, nil
}

// Name implements Channel.
func (c *RealtimeChannel) Name() string { return ChannelRealtime }

// Deliver broadcasts notification.created to every recipient. Recipients without an open
// connection simply miss the push; the inbox entry remains the source of truth.
func (c *RealtimeChannel) Deliver(_ context.Context, event Event, recipients []string) (Outcome, error) {
	connections := c.hub.BroadcastToUsers(realtime.StreamNotifications, recipients, realtime.Message{
		Event: realtime.EventNotificationCreated,
		Data:  event,
	})
	return Outcome{
		Channel:        ChannelRealtime,
		Status:         StatusDelivered,
		RecipientCount: len(recipients),
		Details:        map[string]any{"connections": connections},
	}, nil
}
