package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/smartpost/internal/database/testutil"
	"github.com/charlesng35/smartpost/internal/docstore"
	"github.com/charlesng35/smartpost/internal/realtime"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, clock *testClock) *docstore.GormStore {
	t.Helper()
	store, err := docstore.NewGormStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()), docstore.WithClock(clock.Now))
	require.NoError(t, err)
	return store
}

// newPipeline wires the event log and inbox channels the way the server does.
func newPipeline(t *testing.T, opts ...ServiceOption) (*Service, *Inbox, *docstore.GormStore, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := newTestStore(t, clock)

	eventLog, err := NewEventLogChannel(store)
	require.NoError(t, err)
	inboxChannel, err := NewInboxChannel(store)
	require.NoError(t, err)

	opts = append([]ServiceOption{WithClock(clock.Now)}, opts...)
	svc, err := NewService([]Channel{eventLog, inboxChannel, NewWebPushChannel(), NewMobilePushChannel()}, opts...)
	require.NoError(t, err)

	inbox, err := NewInbox(store)
	require.NoError(t, err)
	return svc, inbox, store, clock
}

type recordingChannel struct {
	name string

	mu    sync.Mutex
	calls []Event
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, event Event, recipients []string) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, event)
	return Outcome{Status: StatusOK, RecipientCount: len(recipients)}, nil
}

func (c *recordingChannel) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type failingChannel struct {
	name string
	err  error
}

func (c *failingChannel) Name() string { return c.name }

func (c *failingChannel) Deliver(context.Context, Event, []string) (Outcome, error) {
	if c.err == nil {
		panic("channel exploded")
	}
	return Outcome{}, c.err
}

type hangingChannel struct {
	release chan struct{}
}

func (c *hangingChannel) Name() string { return "hanging" }

func (c *hangingChannel) Deliver(context.Context, Event, []string) (Outcome, error) {
	<-c.release
	return Outcome{Status: StatusOK}, nil
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []broadcastCall
}

type broadcastCall struct {
	stream  string
	users   []string
	message realtime.Message
}

func (b *fakeBroadcaster) BroadcastToUsers(stream string, users []string, message realtime.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, broadcastCall{stream: stream, users: users, message: message})
	return len(users)
}

func (b *fakeBroadcaster) Calls() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.messages...)
}

var errBrokerDown = errors.New("broker down")
