package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/logger"
	"github.com/charlesng35/smartpost/pkg/metrics"
)

// DefaultChannelTimeout bounds a single channel delivery.
const DefaultChannelTimeout = 5 * time.Second

// PublishInput describes one logical notification.
type PublishInput struct {
	Recipients []string
	Type       string
	Title      string
	Body       string
	Severity   string
	Actor      string
	DeviceID   string
	Data       map[string]any
}

// PublishResult aggregates the outcome of every channel.
type PublishResult struct {
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	EventID        string    `json:"event_id,omitempty"`
	RecipientCount int       `json:"recipient_count"`
	Deliveries     []Outcome `json:"deliveries"`
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithResolver overrides the recipient policy used by PublishForActor.
func WithResolver(resolver Resolver) ServiceOption {
	return func(s *Service) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithChannelTimeout bounds every channel delivery.
func WithChannelTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithClock overrides the clock stamped into created_at_client.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(next func() string) ServiceOption {
	return func(s *Service) {
		if next != nil {
			s.newID = next
		}
	}
}

// Service builds events and fans them out to an ordered channel set.
type Service struct {
	channels []Channel
	resolver Resolver
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
}

// NewService constructs a notification service delivering to channels in order.
func NewService(channels []Channel, opts ...ServiceOption) (*Service, error) {
	seen := make(map[string]struct{}, len(channels))
	for i, ch := range channels {
		if ch == nil {
			return nil, fmt.Errorf("notification service: channel %d is nil", i)
		}
		if _, dup := seen[ch.Name()]; dup {
			return nil, fmt.Errorf("notification service: duplicate channel %q", ch.Name())
		}
		seen[ch.Name()] = struct{}{}
	}

	svc := &Service{
		channels: append([]Channel(nil), channels...),
		resolver: ActorResolver{},
		timeout:  DefaultChannelTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Channels lists configured channel names in delivery order.
func (s *Service) Channels() []string {
	names := make([]string, 0, len(s.channels))
	for _, ch := range s.channels {
		names = append(names, ch.Name())
	}
	return names
}

// PublishForActor resolves recipients from the acting principal and device, then publishes.
func (s *Service) PublishForActor(ctx context.Context, input PublishInput) (*PublishResult, error) {
	input.Recipients = s.resolver.Resolve(ctx, input.DeviceID, input.Actor)
	return s.Publish(ctx, input)
}

// Publish delivers one event to every channel. Channel failures are reported in the
// result and never returned as an error; only invalid input fails the call. An empty
// recipient list is skipped before the event fields are validated.
func (s *Service) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	recipients := normaliseRecipients(input.Recipients)
	if len(recipients) == 0 {
		metrics.NotificationPublishes.WithLabelValues(StatusSkipped).Inc()
		return &PublishResult{
			Status:     StatusSkipped,
			Reason:     ReasonNoRecipients,
			Deliveries: []Outcome{},
		}, nil
	}

	eventType := strings.TrimSpace(input.Type)
	if eventType == "" {
		return nil, apperrors.NewBadRequest("notification type is required")
	}
	severity, err := ParseSeverity(input.Severity)
	if err != nil {
		return nil, err
	}

	event := Event{
		ID:              s.newID(),
		SchemaVersion:   SchemaVersion,
		Type:            eventType,
		Title:           input.Title,
		Body:            input.Body,
		Severity:        severity,
		Actor:           strings.TrimSpace(input.Actor),
		DeviceID:        strings.TrimSpace(input.DeviceID),
		Data:            copyData(input.Data),
		CreatedAtClient: s.now().UTC(),
	}

	deliveries := make([]Outcome, 0, len(s.channels))
	for _, ch := range s.channels {
		deliveries = append(deliveries, s.deliver(ctx, ch, event, recipients))
	}

	metrics.NotificationPublishes.WithLabelValues(StatusOK).Inc()
	return &PublishResult{
		Status:         StatusOK,
		EventID:        event.ID,
		RecipientCount: len(recipients),
		Deliveries:     deliveries,
	}, nil
}

type deliveryResult struct {
	outcome Outcome
	err     error
}

func (s *Service) deliver(ctx context.Context, ch Channel, event Event, recipients []string) Outcome {
	name := ch.Name()
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan deliveryResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- deliveryResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		// Recipients are copied so a channel cannot mutate what the next one sees.
		outcome, err := ch.Deliver(ctx, event, append([]string(nil), recipients...))
		done <- deliveryResult{outcome: outcome, err: err}
	}()

	var outcome Outcome
	select {
	case res := <-done:
		outcome = res.outcome
		if res.err != nil {
			outcome = Outcome{Status: StatusError, Error: res.err.Error(), RecipientCount: len(recipients)}
		}
	case <-ctx.Done():
		reason := ""
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		outcome = Outcome{Status: StatusError, Reason: reason, Error: ctx.Err().Error(), RecipientCount: len(recipients)}
	}

	outcome.Channel = name
	if outcome.Status == "" {
		outcome.Status = StatusOK
	}

	metrics.ChannelDeliveries.WithLabelValues(name, outcome.Status).Inc()
	metrics.ChannelLatency.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if outcome.Status == StatusError {
		s.log.Warn("channel delivery failed",
			zap.String("channel", name),
			zap.String("event_id", event.ID),
			zap.String("error", outcome.Error),
		)
	}
	return outcome
}
