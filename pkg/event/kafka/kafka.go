// Package kafka delivers events through kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/entable/entable/pkg/event"
)

const maxHandlerRetries = 3

// retryBackoff scales the wait between handler retries.
var retryBackoff = time.Second

// Bus publishes through a sync producer and consumes partition 0 of
// each subscribed topic. One partition consumer runs per topic; later
// subscribers on the same topic join its handler list.
type Bus struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	log      *zap.Logger

	mu        sync.RWMutex
	handlers  map[string][]event.Handler
	consuming map[string]struct{}
}

var _ event.Bus = (*Bus)(nil)

// New connects a bus to the brokers.
func New(brokers []string, logger *zap.Logger) (*Bus, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("creating kafka consumer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		producer:  producer,
		consumer:  consumer,
		log:       logger,
		handlers:  make(map[string][]event.Handler),
		consuming: make(map[string]struct{}),
	}, nil
}

// Publish validates the event, stamps the topic and sends it.
func (k *Bus) Publish(ctx context.Context, topic string, evt event.Event) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	evt.Topic = topic
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("sending event: %w", err)
	}
	return nil
}

// Subscribe registers a handler and starts the topic's partition
// consumer if it is not running yet.
func (k *Bus) Subscribe(ctx context.Context, topic string, handler event.Handler) error {
	k.mu.Lock()
	k.handlers[topic] = append(k.handlers[topic], handler)
	_, started := k.consuming[topic]
	if !started {
		k.consuming[topic] = struct{}{}
	}
	k.mu.Unlock()
	if started {
		return nil
	}

	pc, err := k.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		k.mu.Lock()
		delete(k.consuming, topic)
		k.mu.Unlock()
		return fmt.Errorf("consuming topic %q: %w", topic, err)
	}
	go k.consume(ctx, topic, pc)
	return nil
}

// Unsubscribe drops the topic's handlers. The partition consumer keeps
// draining so a later Subscribe picks delivery back up.
func (k *Bus) Unsubscribe(topic string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.handlers, topic)
	return nil
}

// Close shuts the producer and consumer down. Closing the consumer
// ends every topic's delivery loop.
func (k *Bus) Close() error {
	var errs []error
	if err := k.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing producer: %w", err))
	}
	if err := k.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing consumer: %w", err))
	}
	return errors.Join(errs...)
}

func (k *Bus) consume(ctx context.Context, topic string, pc sarama.PartitionConsumer) {
	for {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			k.dispatch(topic, msg.Value)
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			k.log.Warn("kafka consumer error", zap.String("topic", topic), zap.Error(err))
		case <-ctx.Done():
			_ = pc.Close()
			return
		}
	}
}

// dispatch decodes one message and feeds it to the topic handlers.
// Undecodable or invalid messages are logged and skipped; this
// consumer has no per-message requeue, so ErrRetry is honored by
// in-process retries with a bounded backoff.
func (k *Bus) dispatch(topic string, body []byte) {
	var evt event.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		k.log.Warn("undecodable kafka event", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := evt.Validate(); err != nil {
		k.log.Warn("invalid kafka event", zap.String("topic", topic), zap.Error(err))
		return
	}

	k.mu.RLock()
	handlers := append([]event.Handler(nil), k.handlers[topic]...)
	k.mu.RUnlock()

	for _, h := range handlers {
		k.runHandler(h, &evt)
	}
}

func (k *Bus) runHandler(h event.Handler, evt *event.Event) {
	for attempt := 0; ; attempt++ {
		err := h(evt)
		if err == nil {
			return
		}
		if !errors.Is(err, event.ErrRetry) || attempt >= maxHandlerRetries {
			k.log.Warn("event handler failed", zap.String("id", evt.ID), zap.Error(err))
			return
		}
		time.Sleep(time.Duration(attempt+1) * retryBackoff)
	}
}
