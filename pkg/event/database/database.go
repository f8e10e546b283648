// Package database persists events in a framework-owned table and
// delivers them by polling, so subscribers survive process restarts
// and a handler failure leaves the event pending for the next tick.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/entity"
	"github.com/entable/entable/pkg/event"
	"github.com/entable/entable/pkg/query"
)

// EventTable is the framework-owned table events are stored in.
const EventTable = "entable_events"

const defaultPollInterval = time.Second

var (
	eventOnce sync.Once
	eventCfg  *entity.Config
)

// eventConfig describes the event table with the same config machinery
// user entities use, so its DDL rides the normal path.
func eventConfig() *entity.Config {
	eventOnce.Do(func() {
		cfg := &entity.Config{
			Entity: "EntableEvent",
			Table:  EventTable,
			Columns: []*entity.Column{
				{Logical: "id", Physical: "event_id", Type: dialect.TypeString, PrimaryKey: true},
				{Logical: "topic", Type: dialect.TypeString},
				{Logical: "type", Physical: "event_type", Type: dialect.TypeString},
				{Logical: "entity", Type: dialect.TypeString, Nullable: true},
				{Logical: "key", Physical: "key_values", Type: dialect.TypeJSON, Nullable: true},
				{Logical: "payload", Type: dialect.TypeJSON, Nullable: true},
				{Logical: "timestamp", Physical: "occurred_at", Type: dialect.TypeDatetime},
				{Logical: "processed", Type: dialect.TypeBoolean, Default: false},
			},
		}
		if err := cfg.Validate(); err != nil {
			panic(err)
		}
		eventCfg = cfg
	})
	return eventCfg
}

// Options configures one Bus.
type Options struct {
	// PollInterval is the delivery period; default one second.
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Bus stores published events through an adapter and polls them back
// out to handlers. It does not own the adapter; closing the bus stops
// delivery but leaves the database handle open.
type Bus struct {
	a    adapter.Adapter
	log  *zap.Logger
	poll time.Duration

	mu       sync.RWMutex
	handlers map[string][]event.Handler
	polling  map[string]struct{}
	done     chan struct{}
	closed   bool
}

var _ event.Bus = (*Bus)(nil)

// New builds a bus over the adapter, creating the event table if it is
// missing.
func New(ctx context.Context, a adapter.Adapter, opts ...*Options) (*Bus, error) {
	o := &Options{}
	if len(opts) > 0 && opts[0] != nil {
		o = opts[0]
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := o.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if err := a.CreateTable(ctx, eventConfig(), false); err != nil {
		return nil, fmt.Errorf("ensuring event table: %w", err)
	}
	return &Bus{
		a:        a,
		log:      logger,
		poll:     poll,
		handlers: make(map[string][]event.Handler),
		polling:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Publish validates the event, stamps the topic and stores the row.
func (b *Bus) Publish(ctx context.Context, topic string, evt event.Event) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	evt.Topic = topic
	key, err := encodeJSON(evt.Key)
	if err != nil {
		return fmt.Errorf("encoding event key: %w", err)
	}
	payload, err := encodeJSON(evt.Payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	_, err = b.a.Insert(ctx, EventTable, map[string]any{
		"event_id":    evt.ID,
		"topic":       evt.Topic,
		"event_type":  evt.Type,
		"entity":      evt.Entity,
		"key_values":  key,
		"payload":     payload,
		"occurred_at": evt.Timestamp,
		"processed":   evt.Processed,
	})
	return err
}

// Subscribe registers a handler and starts the topic's poller if it is
// not running yet. The first subscriber's context scopes the topic's
// delivery loop.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler event.Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("event bus is closed")
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	_, started := b.polling[topic]
	if !started {
		b.polling[topic] = struct{}{}
	}
	b.mu.Unlock()

	if !started {
		go b.pollTopic(ctx, topic)
	}
	return nil
}

// Unsubscribe drops the topic's handlers. Pending rows stay stored and
// are delivered to a later subscriber.
func (b *Bus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

// Close stops every poller. The adapter stays open; its owner closes
// it.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
		b.handlers = make(map[string][]event.Handler)
	}
	return nil
}

func (b *Bus) pollTopic(ctx context.Context, topic string) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.deliver(ctx, topic)
		}
	}
}

// deliver runs one polling pass: every unprocessed topic event goes to
// every handler, and only a fully successful pass marks the row
// processed. A failed handler leaves the event for the next tick,
// which is also how ErrRetry is honored here.
func (b *Bus) deliver(ctx context.Context, topic string) {
	rows, err := b.a.FindBy(ctx, EventTable,
		map[string]any{"topic": topic, "processed": false},
		&adapter.FindOptions{OrderBy: []adapter.Order{{Field: "occurred_at", Dir: query.Asc}}})
	if err != nil {
		b.log.Warn("event poll failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	for _, row := range rows {
		evt, err := rowToEvent(row)
		if err != nil {
			b.log.Warn("undecodable event row", zap.String("topic", topic), zap.Error(err))
			continue
		}

		b.mu.RLock()
		handlers := append([]event.Handler(nil), b.handlers[topic]...)
		b.mu.RUnlock()
		if len(handlers) == 0 {
			return
		}

		delivered := true
		for _, h := range handlers {
			if err := h(evt); err != nil {
				b.log.Debug("event handler failed, keeping event pending",
					zap.String("id", evt.ID), zap.Error(err))
				delivered = false
				break
			}
		}
		if !delivered {
			continue
		}
		if _, err := b.a.Update(ctx, EventTable,
			map[string]any{"processed": true},
			map[string]any{"event_id": evt.ID}); err != nil {
			b.log.Warn("marking event processed failed", zap.String("id", evt.ID), zap.Error(err))
		}
	}
}

func encodeJSON(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func rowToEvent(row query.Row) (*event.Event, error) {
	evt := &event.Event{
		Processed: query.ToInt64(row["processed"]) != 0,
	}
	evt.ID, _ = row["event_id"].(string)
	evt.Topic, _ = row["topic"].(string)
	evt.Type, _ = row["event_type"].(string)
	evt.Entity, _ = row["entity"].(string)
	if evt.ID == "" {
		return nil, fmt.Errorf("event row without id")
	}
	if s, ok := row["key_values"].(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &evt.Key); err != nil {
			return nil, fmt.Errorf("decoding event key: %w", err)
		}
	}
	if s, ok := row["payload"].(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &evt.Payload); err != nil {
			return nil, fmt.Errorf("decoding event payload: %w", err)
		}
	}
	switch v := row["occurred_at"].(type) {
	case time.Time:
		evt.Timestamp = v
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("decoding event timestamp: %w", err)
		}
		evt.Timestamp = ts
	}
	return evt, nil
}
