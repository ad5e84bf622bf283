package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/smartpost/internal/database/testutil"
	"github.com/charlesng35/smartpost/internal/docstore"
	"github.com/charlesng35/smartpost/internal/notifications"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*docstore.GormStore, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	store, err := docstore.NewGormStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()), docstore.WithClock(clock.Now))
	require.NoError(t, err)
	return store, clock
}

type fakePublisher struct {
	mu     sync.Mutex
	inputs []notifications.PublishInput
	err    error
}

func (p *fakePublisher) PublishForActor(_ context.Context, input notifications.PublishInput) (*notifications.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, input)
	if p.err != nil {
		return nil, p.err
	}
	return &notifications.PublishResult{Status: notifications.StatusOK, RecipientCount: 1}, nil
}

func (p *fakePublisher) Inputs() []notifications.PublishInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifications.PublishInput(nil), p.inputs...)
}

var errPublishFailed = errors.New("publish failed")
