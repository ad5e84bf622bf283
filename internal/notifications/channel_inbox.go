package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/smartpost/internal/docstore"
)

// Per-destination delivery statuses recorded on inbox entries.
const (
	DeliveryDelivered    = "delivered"
	DeliveryNotAttempted = "not_attempted"
)

const defaultInboxConcurrency = 8

// InboxChannel upserts one entry per recipient under users/{recipient}/notifications.
type InboxChannel struct {
	store       docstore.Store
	concurrency int
}

// NewInboxChannel constructs the per-user inbox channel.
func NewInboxChannel(store docstore.Store) (*InboxChannel, error) {
	if store == nil {
		return nil, errors.New("inbox channel: store is required")
	}
	return &InboxChannel{store: store, concurrency: defaultInboxConcurrency}, nil
}

// Name implements Channel.
func (c *InboxChannel) Name() string { return ChannelInbox }

// Deliver merge-upserts the entry of every recipient in parallel. read, read_at and
// created_at are only written when the entry is new so a repeated publish never
// reverts an entry the user already read. Every recipient is attempted and all
// failures are reported together.
func (c *InboxChannel) Deliver(ctx context.Context, event Event, recipients []string) (Outcome, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		errs    error
		written int
	)
	g.SetLimit(c.concurrency)

	for _, recipient := range recipients {
		g.Go(func() error {
			err := c.write(ctx, event, recipient)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			written++
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil {
		return Outcome{}, fmt.Errorf("inbox: %d of %d recipients failed: %w", len(recipients)-written, len(recipients), errs)
	}
	return Outcome{
		Channel:        ChannelInbox,
		Status:         StatusOK,
		RecipientCount: written,
	}, nil
}

func (c *InboxChannel) write(ctx context.Context, event Event, recipient string) error {
	doc := event.Fields()
	doc["recipient"] = recipient
	doc["updated_at"] = docstore.ServerTimestamp
	doc["delivery"] = map[string]any{
		ChannelInbox:      DeliveryDelivered,
		ChannelWebPush:    DeliveryNotAttempted,
		ChannelMobilePush: DeliveryNotAttempted,
	}

	err := c.store.Set(ctx, InboxCollection(recipient), event.ID, doc,
		docstore.Merge(),
		docstore.InsertOnly(map[string]any{
			"read":       false,
			"read_at":    nil,
			"created_at": docstore.ServerTimestamp,
		}),
	)
	if err != nil {
		return fmt.Errorf("recipient %s: %w", recipient, err)
	}
	return nil
}
