package notifications

import "context"

// PushPlaceholderChannel pins the contract of a push channel that is not implemented
// yet. It never contacts an external service.
type PushPlaceholderChannel struct {
	name string
}

// NewWebPushChannel returns the web push placeholder.
func NewWebPushChannel() *PushPlaceholderChannel {
	return &PushPlaceholderChannel{name: ChannelWebPush}
}

// NewMobilePushChannel returns the mobile push placeholder.
func NewMobilePushChannel() *PushPlaceholderChannel {
	return &PushPlaceholderChannel{name: ChannelMobilePush}
}

// Name implements Channel.
func (c *PushPlaceholderChannel) Name() string { return c.name }

// Deliver always reports the channel as skipped.
func (c *PushPlaceholderChannel) Deliver(_ context.Context, _ Event, recipients []string) (Outcome, error) {
	return Outcome{
		Channel:        c.name,
		Status:         StatusSkipped,
		Reason:         ReasonStubNotImplemented,
		RecipientCount: len(recipients),
	}, nil
}
