// Package event carries change notifications out of the data layer.
// Repositories publish entity.created/updated/deleted after successful
// mutations; the config watcher publishes config.changed. Buses
// deliver them from a database table (polling), kafka or rocketmq.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the framework.
const (
	TypeEntityCreated = "entity.created"
	TypeEntityUpdated = "entity.updated"
	TypeEntityDeleted = "entity.deleted"
	TypeConfigChanged = "config.changed"
)

// ErrRetry asks the delivering bus to redeliver the event to the
// handler that returned it.
var ErrRetry = errors.New("retry event handling")

// Event is one change notification. Key holds the logical primary-key
// values of the affected row, Payload the values that were written.
// Topic is stamped by the bus on publish.
type Event struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic,omitempty"`
	Type      string         `json:"type"`
	Entity    string         `json:"entity,omitempty"`
	Key       map[string]any `json:"key,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Processed bool           `json:"processed,omitempty"`
}

// New builds an event with a fresh ID and the current time.
func New(eventType, entityName string, key, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Entity:    entityName,
		Key:       key,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Validate reports whether the event can be published.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event ID cannot be empty")
	}
	if e.Type == "" {
		return fmt.Errorf("event Type cannot be empty")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event Timestamp cannot be zero")
	}
	return nil
}

// Handler consumes one delivered event.
type Handler func(*Event) error

// Publisher sends events to a topic.
type Publisher interface {
	// Publish delivers one event to the topic's subscribers.
	Publish(ctx context.Context, topic string, evt Event) error
	// Close releases the publisher.
	Close() error
}

// Subscriber feeds topic events to handlers.
type Subscriber interface {
	// Subscribe registers a handler for a topic. Delivery runs until
	// ctx is cancelled or the subscriber is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	// Unsubscribe drops every handler of a topic.
	Unsubscribe(topic string) error
	// Close releases the subscriber.
	Close() error
}

// Bus is a publisher and subscriber over the same transport.
type Bus interface {
	Publisher
	Subscriber
}
