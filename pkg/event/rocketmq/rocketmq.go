// Package rocketmq delivers events through rocketmq topics.
package rocketmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/entable/entable/pkg/event"
)

// Config locates the name servers and names the producer/consumer
// group.
type Config struct {
	Endpoints []string
	Group     string
}

// Bus publishes through a started producer and consumes through a push
// consumer. Handler failures defer to rocketmq's redelivery.
type Bus struct {
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer
	log      *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]event.Handler
	started  bool
}

var _ event.Bus = (*Bus)(nil)

// New connects a bus to the name servers. The consumer starts with the
// first subscription.
func New(cfg Config, logger *zap.Logger) (*Bus, error) {
	p, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.Endpoints),
		producer.WithGroupName(cfg.Group),
		producer.WithRetry(2),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("starting rocketmq producer: %w", err)
	}
	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer(cfg.Endpoints),
		consumer.WithGroupName(cfg.Group),
	)
	if err != nil {
		_ = p.Shutdown()
		return nil, fmt.Errorf("creating rocketmq consumer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		producer: p,
		consumer: c,
		log:      logger,
		handlers: make(map[string][]event.Handler),
	}, nil
}

// Publish validates the event, stamps the topic and sends it
// synchronously.
func (r *Bus) Publish(ctx context.Context, topic string, evt event.Event) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	evt.Topic = topic
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	msg := &primitive.Message{Topic: topic, Body: data}
	if _, err := r.producer.SendSync(ctx, msg); err != nil {
		return fmt.Errorf("sending event: %w", err)
	}
	return nil
}

// Subscribe registers a handler and subscribes the push consumer to
// the topic, starting it on the first subscription.
func (r *Bus) Subscribe(ctx context.Context, topic string, handler event.Handler) error {
	r.mu.Lock()
	r.handlers[topic] = append(r.handlers[topic], handler)
	r.mu.Unlock()

	selector := consumer.MessageSelector{Type: consumer.TAG, Expression: "*"}
	err := r.consumer.Subscribe(topic, selector,
		func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
			for _, msg := range msgs {
				if res := r.deliver(msg.Topic, msg.Body); res != consumer.ConsumeSuccess {
					return res, nil
				}
			}
			return consumer.ConsumeSuccess, nil
		})
	if err != nil {
		return fmt.Errorf("subscribing topic %q: %w", topic, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.consumer.Start(); err != nil {
		return fmt.Errorf("starting rocketmq consumer: %w", err)
	}
	r.started = true
	return nil
}

// Unsubscribe drops the topic's handlers and the broker subscription.
func (r *Bus) Unsubscribe(topic string) error {
	r.mu.Lock()
	delete(r.handlers, topic)
	r.mu.Unlock()
	return r.consumer.Unsubscribe(topic)
}

// Close shuts the producer down, and the consumer when it was started.
func (r *Bus) Close() error {
	var errs []error
	if err := r.producer.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("closing producer: %w", err))
	}
	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()
	if started {
		if err := r.consumer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("closing consumer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// deliver decodes one message body and runs the topic handlers. A
// handler failure returns ConsumeRetryLater so the broker redelivers;
// undecodable or invalid bodies are poison and are not requeued.
func (r *Bus) deliver(topic string, body []byte) consumer.ConsumeResult {
	var evt event.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		r.log.Warn("undecodable rocketmq event", zap.String("topic", topic), zap.Error(err))
		return consumer.ConsumeSuccess
	}
	if err := evt.Validate(); err != nil {
		r.log.Warn("invalid rocketmq event", zap.String("topic", topic), zap.Error(err))
		return consumer.ConsumeSuccess
	}

	r.mu.RLock()
	handlers := append([]event.Handler(nil), r.handlers[topic]...)
	r.mu.RUnlock()

	for _, h := range handlers {
		if err := h(&evt); err != nil {
			if !errors.Is(err, event.ErrRetry) {
				r.log.Warn("event handler failed", zap.String("id", evt.ID), zap.Error(err))
			}
			return consumer.ConsumeRetryLater
		}
	}
	return consumer.ConsumeSuccess
}
