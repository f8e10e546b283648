// Package testing holds the bus contract suite the event transports
// share. A transport test embeds EventBusTestSuite, assigns Bus in its
// SetupTest and calls RunBusTests from one test method.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/entable/entable/pkg/event"
)

// EventBusTestSuite exercises the behavior every Bus shares: delivery,
// fan-out, unsubscribe and topic isolation.
type EventBusTestSuite struct {
	suite.Suite
	Bus event.Bus

	// WaitTimeout bounds each delivery wait; default five seconds.
	WaitTimeout time.Duration
}

// NewTestEvent builds an event whose key and payload survive a
// store-and-reload round trip unchanged (string values only).
func NewTestEvent(eventType string, payload map[string]any) event.Event {
	return event.New(eventType, "TestEntity", map[string]any{"id": "1"}, payload)
}

// RunBusTests runs the contract against s.Bus.
func (s *EventBusTestSuite) RunBusTests() {
	s.Run("publish subscribe", s.assertPublishSubscribe)
	s.Run("multiple subscribers", s.assertMultipleSubscribers)
	s.Run("unsubscribe", s.assertUnsubscribe)
	s.Run("topic isolation", s.assertTopicIsolation)
	s.Run("concurrent publish", s.assertConcurrentPublish)
}

func (s *EventBusTestSuite) timeout() time.Duration {
	if s.WaitTimeout > 0 {
		return s.WaitTimeout
	}
	return 5 * time.Second
}

func (s *EventBusTestSuite) waitEvent(ch <-chan *event.Event) *event.Event {
	select {
	case evt := <-ch:
		return evt
	case <-time.After(s.timeout()):
		s.FailNow("timeout waiting for event")
		return nil
	}
}

func (s *EventBusTestSuite) subscribeChan(ctx context.Context, topic string) <-chan *event.Event {
	ch := make(chan *event.Event, 16)
	err := s.Bus.Subscribe(ctx, topic, func(e *event.Event) error {
		ch <- e
		return nil
	})
	s.Require().NoError(err)
	return ch
}

func (s *EventBusTestSuite) assertPublishSubscribe() {
	ctx := context.Background()
	const topic = "contract.basic"
	ch := s.subscribeChan(ctx, topic)

	evt := NewTestEvent("test.created", map[string]any{"message": "hello"})
	s.Require().NoError(s.Bus.Publish(ctx, topic, evt))

	got := s.waitEvent(ch)
	s.Equal(evt.ID, got.ID)
	s.Equal(evt.Type, got.Type)
	s.Equal(evt.Entity, got.Entity)
	s.Equal(evt.Key, got.Key)
	s.Equal(evt.Payload, got.Payload)
}

func (s *EventBusTestSuite) assertMultipleSubscribers() {
	ctx := context.Background()
	const topic = "contract.fanout"
	first := s.subscribeChan(ctx, topic)
	second := s.subscribeChan(ctx, topic)

	evt := NewTestEvent("test.created", map[string]any{"message": "both"})
	s.Require().NoError(s.Bus.Publish(ctx, topic, evt))

	s.Equal(evt.ID, s.waitEvent(first).ID)
	s.Equal(evt.ID, s.waitEvent(second).ID)
}

func (s *EventBusTestSuite) assertUnsubscribe() {
	ctx := context.Background()
	const topic = "contract.unsubscribe"
	ch := s.subscribeChan(ctx, topic)
	s.Require().NoError(s.Bus.Unsubscribe(topic))

	evt := NewTestEvent("test.created", map[string]any{"message": "dropped"})
	s.Require().NoError(s.Bus.Publish(ctx, topic, evt))

	select {
	case <-ch:
		s.FailNow("received event after unsubscribe")
	case <-time.After(500 * time.Millisecond):
	}
}

func (s *EventBusTestSuite) assertTopicIsolation() {
	ctx := context.Background()
	topics := []string{"contract.one", "contract.two", "contract.three"}
	chans := make(map[string]<-chan *event.Event, len(topics))
	for _, topic := range topics {
		chans[topic] = s.subscribeChan(ctx, topic)
	}

	for _, topic := range topics {
		evt := NewTestEvent(topic, map[string]any{"topic": topic})
		s.Require().NoError(s.Bus.Publish(ctx, topic, evt))
	}

	for _, topic := range topics {
		got := s.waitEvent(chans[topic])
		s.Equal(topic, got.Type)
		s.Equal(map[string]any{"topic": topic}, got.Payload)
	}
}

func (s *EventBusTestSuite) assertConcurrentPublish() {
	ctx := context.Background()
	const topic = "contract.concurrent"
	const n = 10

	var mu sync.Mutex
	count := 0
	err := s.Bus.Subscribe(ctx, topic, func(e *event.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evt := NewTestEvent("test.created", map[string]any{"message": "burst"})
			s.NoError(s.Bus.Publish(ctx, topic, evt))
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(s.timeout())
	for {
		mu.Lock()
		c := count
		mu.Unlock()
		if c >= n {
			break
		}
		if time.Now().After(deadline) {
			s.FailNowf("timeout", "got %d of %d events", c, n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A settle period catches duplicate delivery.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	s.Equal(n, count)
}
