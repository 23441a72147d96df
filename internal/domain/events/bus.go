package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termvisor/internal/shared/id"
)

// Defaults for BusConfig.
const (
	DefaultBuffer     = 256
	DefaultMaxBacklog = 64 << 20
)

// backlogOverhead is the cost charged per queued notification on top of its
// data.
const backlogOverhead = 128

// ErrInvalidEvent wraps validation failures from PublishAgent.
var ErrInvalidEvent = errors.New("invalid domain event")

// BusConfig configures a Bus.
type BusConfig struct {
	// Buffer is the per-subscriber channel capacity.
	Buffer int
	// MaxBacklog bounds the bytes queued behind a full channel. A subscriber
	// that falls further behind is closed.
	MaxBacklog int
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics
}

// Bus fans notifications out to subscribers. Publishing never blocks and
// never drops: a notification that does not fit a subscriber's channel is
// queued, in order, behind it.
type Bus struct {
	validate   *validator.Validate
	buffer     int
	maxBacklog int
	logger     *zap.Logger
	warn       *logging.Limited
	metrics    *monitoring.Metrics

	mu     sync.RWMutex
	subs   map[id.SubscriptionID]*subscription
	closed bool
}

// NewBus creates a Bus.
func NewBus(cfg BusConfig) *Bus {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = DefaultMaxBacklog
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")

	return &Bus{
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		buffer:     cfg.Buffer,
		maxBacklog: cfg.MaxBacklog,
		logger:     logger,
		warn:       logging.NewLimited(logger, time.Second, 5),
		metrics:    cfg.Metrics,
		subs:       make(map[id.SubscriptionID]*subscription),
	}
}

// Subscribe registers for the given kinds, or for everything when none are
// given. The returned function unsubscribes and closes the channel.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Notification)
		close(ch)
		return ch, func() {}
	}

	sub := newSubscription(b.buffer, kinds)
	subID := id.NewSubscriptionID()
	b.subs[subID] = sub

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, subID)
		b.mu.Unlock()
		sub.stop()
	}
}

// Publish delivers n to every interested subscriber.
func (b *Bus) Publish(n Notification) {
	var evicted []id.SubscriptionID

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for subID, sub := range b.subs {
		if !sub.wants(n.Kind) {
			continue
		}
		if sub.offer(n) > b.maxBacklog {
			evicted = append(evicted, subID)
		}
	}
	b.mu.RUnlock()

	for _, subID := range evicted {
		b.evict(subID, n.SessionID)
	}
}

func (b *Bus) evict(subID id.SubscriptionID, sessionID string) {
	b.mu.Lock()
	sub, ok := b.subs[subID]
	delete(b.subs, subID)
	b.mu.Unlock()
	if !ok {
		return
	}

	sub.stop()
	b.metrics.IncBusEvictions()
	b.warn.Warn("Subscriber backlog exceeded, closing subscription",
		zap.String("subscription_id", subID.String()),
		zap.String("session_id", sessionID),
		zap.Int("max_backlog", b.maxBacklog))
}

// PublishAgent validates ev and publishes it as an agent notification. An
// event that fails validation is dropped, logged at a bounded rate, and
// reported as ErrInvalidEvent.
func (b *Bus) PublishAgent(sessionID string, ev DomainEvent) error {
	if err := b.Validate(ev); err != nil {
		typ := "nil"
		if ev != nil {
			typ = string(ev.Type())
		}
		b.metrics.RecordInvalidEvent(typ)
		b.warn.Warn("Dropping invalid domain event",
			zap.String("type", typ),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return err
	}

	b.Publish(Notification{
		Kind:      KindAgent,
		SessionID: sessionID,
		Timestamp: time.UnixMilli(ev.Header().Timestamp),
		Event:     ev,
	})
	return nil
}

// Validate checks ev against its schema.
func (b *Bus) Validate(ev DomainEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if err := b.validate.Struct(ev); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEvent, ev.Type(), err)
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Notifications already queued are still
// delivered before a channel closes. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[id.SubscriptionID]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.drain()
	}
}
