package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/smartpost/internal/docstore"
	"github.com/charlesng35/smartpost/internal/realtime"
	apperrors "github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/logger"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	// ClearChunkSize keeps each batch commit under docstore.MaxBatchOps with headroom.
	ClearChunkSize = 450
)

// ClearMode selects which entries Clear removes.
type ClearMode string

const (
	ClearRead ClearMode = "read"
	ClearAll  ClearMode = "all"
)

// ParseClearMode validates a clear mode; empty means ClearRead.
func ParseClearMode(value string) (ClearMode, error) {
	switch ClearMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ClearRead:
		return ClearRead, nil
	case ClearAll:
		return ClearAll, nil
	}
	return "", apperrors.NewBadRequest("mode must be 'read' or 'all'")
}

// ClampLimit bounds a requested page size to [1, MaxListLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Entry is one stored inbox notification.
type Entry struct {
	EventID         string            `json:"event_id"`
	SchemaVersion   int               `json:"schema_version"`
	Type            string            `json:"type"`
	Title           string            `json:"title"`
	Body            string            `json:"body"`
	Severity        string            `json:"severity"`
	Actor           string            `json:"actor"`
	DeviceID        string            `json:"device_id,omitempty"`
	Data            map[string]any    `json:"data"`
	CreatedAtClient time.Time         `json:"created_at_client"`
	Recipient       string            `json:"recipient"`
	Read            bool              `json:"read"`
	ReadAt          *time.Time        `json:"read_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Delivery        map[string]string `json:"delivery"`
}

// InboxOption customises an Inbox.
type InboxOption func(*Inbox)

// WithInboxBroadcaster announces read and clear transitions to connected clients.
func WithInboxBroadcaster(hub Broadcaster) InboxOption {
	return func(i *Inbox) {
		i.hub = hub
	}
}

// Inbox manages the read/unread/clear lifecycle of one recipient's notifications.
type Inbox struct {
	store docstore.Store
	hub   Broadcaster
	log   *zap.Logger
}

// NewInbox constructs the inbox lifecycle manager.
func NewInbox(store docstore.Store, opts ...InboxOption) (*Inbox, error) {
	if store == nil {
		return nil, errors.New("inbox: store is required")
	}
	inbox := &Inbox{store: store, log: logger.WithModule("inbox")}
	for _, opt := range opts {
		opt(inbox)
	}
	return inbox, nil
}

// List returns the newest entries first. limit is clamped to [1, MaxListLimit].
func (i *Inbox) List(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]Entry, error) {
	recipient, err := checkRecipient(recipient)
	if err != nil {
		return nil, err
	}

	query := i.store.Collection(InboxCollection(recipient))
	if unreadOnly {
		query = query.Where("read", docstore.OpEqual, false)
	}
	docs, err := query.OrderBy("created_at", docstore.Desc).Limit(ClampLimit(limit)).Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("inbox: list %s: %w", recipient, err)
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		var entry Entry
		if err := doc.DataTo(&entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// UnreadCount counts unread entries by scanning the recipient's inbox.
func (i *Inbox) UnreadCount(ctx context.Context, recipient string) (int, error) {
	recipient, err := checkRecipient(recipient)
	if err != nil {
		return 0, err
	}
	count, err := i.store.Collection(InboxCollection(recipient)).
		Where("read", docstore.OpEqual, false).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("inbox: unread count %s: %w", recipient, err)
	}
	return count, nil
}

// MarkRead flags one entry as read.
func (i *Inbox) MarkRead(ctx context.Context, recipient, eventID string) error {
	recipient, err := checkRecipient(recipient)
	if err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" || strings.Contains(eventID, "/") {
		return apperrors.NewBadRequest("notification id is invalid")
	}

	err = i.store.Update(ctx, InboxCollection(recipient), eventID, readFields())
	if errors.Is(err, docstore.ErrNotFound) {
		return apperrors.ErrNotFound.WithMessage("Notification not found")
	}
	if err != nil {
		return fmt.Errorf("inbox: mark read %s/%s: %w", recipient, eventID, err)
	}

	i.broadcast(recipient, realtime.EventNotificationRead, map[string]any{"event_id": eventID})
	return nil
}

// MarkAllRead flags every unread entry as read and returns how many were updated.
func (i *Inbox) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	recipient, err := checkRecipient(recipient)
	if err != nil {
		return 0, err
	}
	collection := InboxCollection(recipient)

	docs, err := i.store.Collection(collection).Where("read", docstore.OpEqual, false).Documents(ctx)
	if err != nil {
		return 0, fmt.Errorf("inbox: mark all read %s: %w", recipient, err)
	}

	updated, err := i.inChunks(ctx, docs, func(batch *docstore.WriteBatch, doc *docstore.Snapshot) {
		batch.Update(collection, doc.ID, readFields())
	})
	if updated > 0 {
		i.broadcast(recipient, realtime.EventNotificationReadAll, map[string]any{"updated_count": updated})
	}
	if err != nil {
		return updated, fmt.Errorf("inbox: mark all read %s: %w", recipient, err)
	}
	return updated, nil
}

// Clear deletes read entries (ClearRead) or every entry (ClearAll). Deletes are committed
// in chunks of ClearChunkSize; a failure leaves earlier chunks deleted and the returned
// count reflects them.
func (i *Inbox) Clear(ctx context.Context, recipient string, mode ClearMode) (int, error) {
	recipient, err := checkRecipient(recipient)
	if err != nil {
		return 0, err
	}
	mode, err = ParseClearMode(string(mode))
	if err != nil {
		return 0, err
	}
	collection := InboxCollection(recipient)

	query := i.store.Collection(collection)
	if mode == ClearRead {
		query = query.Where("read", docstore.OpEqual, true)
	}
	docs, err := query.Documents(ctx)
	if err != nil {
		return 0, fmt.Errorf("inbox: clear %s: %w", recipient, err)
	}

	cleared, err := i.inChunks(ctx, docs, func(batch *docstore.WriteBatch, doc *docstore.Snapshot) {
		batch.Delete(collection, doc.ID)
	})
	if cleared > 0 {
		i.broadcast(recipient, realtime.EventNotificationCleared, map[string]any{"cleared_count": cleared})
	}
	if err != nil {
		i.log.Warn("clear interrupted",
			zap.String("recipient", recipient),
			zap.Int("cleared", cleared),
			zap.Int("pending", len(docs)-cleared),
			zap.Error(err),
		)
		return cleared, fmt.Errorf("inbox: clear %s: %w", recipient, err)
	}
	return cleared, nil
}

func (i *Inbox) inChunks(ctx context.Context, docs []*docstore.Snapshot, queue func(*docstore.WriteBatch, *docstore.Snapshot)) (int, error) {
	done := 0
	for start := 0; start < len(docs); start += ClearChunkSize {
		end := start + ClearChunkSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := i.store.Batch()
		for _, doc := range docs[start:end] {
			queue(batch, doc)
		}
		if err := batch.Commit(ctx); err != nil {
			return done, err
		}
		done += batch.Len()
	}
	return done, nil
}

func (i *Inbox) broadcast(recipient, event string, data map[string]any) {
	if i.hub == nil {
		return
	}
	i.hub.BroadcastToUsers(realtime.StreamNotifications, []string{recipient}, realtime.Message{
		Event: event,
		Data:  data,
	})
}

func readFields() map[string]any {
	return map[string]any{
		"read":       true,
		"read_at":    docstore.ServerTimestamp,
		"updated_at": docstore.ServerTimestamp,
	}
}

func checkRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", apperrors.ErrUnauthorized
	}
	if strings.Contains(recipient, "/") {
		return "", apperrors.NewBadRequest("recipient is invalid")
	}
	return recipient, nil
}
