package database

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/suite"

	"github.com/entable/entable/pkg/adapter"
	"github.com/entable/entable/pkg/dialect"
	"github.com/entable/entable/pkg/event"
	eventtesting "github.com/entable/entable/pkg/event/testing"
)

type DBBusSuite struct {
	eventtesting.EventBusTestSuite
	ctx context.Context
	a   *adapter.SQLAdapter
	bus *Bus
}

func (s *DBBusSuite) SetupTest() {
	s.ctx = context.Background()
	a, err := adapter.NewSQL(adapter.Options{
		Dialect: "sqlite3",
		DSN:     dialect.DSNOptions{Path: ":memory:"},
	})
	s.Require().NoError(err)
	s.Require().NoError(a.Connect(s.ctx))

	bus, err := New(s.ctx, a, &Options{PollInterval: 20 * time.Millisecond})
	s.Require().NoError(err)

	s.a, s.bus = a, bus
	s.Bus = bus
}

func (s *DBBusSuite) TearDownTest() {
	s.Require().NoError(s.bus.Close())
	s.Require().NoError(s.a.Close())
}

func TestDBBusSuite(t *testing.T) {
	suite.Run(t, new(DBBusSuite))
}

func (s *DBBusSuite) TestBusContract() {
	s.RunBusTests()
}

func (s *DBBusSuite) TestPublishPersistsRow() {
	evt := eventtesting.NewTestEvent(event.TypeEntityCreated, map[string]any{"name": "Ada"})
	s.Require().NoError(s.bus.Publish(s.ctx, "entity.user", evt))

	row, err := s.a.FindByID(s.ctx, EventTable, map[string]any{"event_id": evt.ID})
	s.Require().NoError(err)
	s.Require().NotNil(row)
	s.Equal("entity.user", row["topic"])
	s.Equal(event.TypeEntityCreated, row["event_type"])
	s.Equal("TestEntity", row["entity"])
	s.Equal(`{"id":"1"}`, row["key_values"])
	s.Equal(`{"name":"Ada"}`, row["payload"])
}

func (s *DBBusSuite) TestPublishRejectsInvalidEvent() {
	err := s.bus.Publish(s.ctx, "entity.user", event.Event{})
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid event")

	n, err := s.a.Count(s.ctx, EventTable, nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *DBBusSuite) TestFailedHandlerKeepsEventPending() {
	const topic = "entity.flaky"
	var mu sync.Mutex
	calls := 0
	err := s.bus.Subscribe(s.ctx, topic, func(*event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return event.ErrRetry
		}
		return nil
	})
	s.Require().NoError(err)

	evt := eventtesting.NewTestEvent(event.TypeEntityUpdated, map[string]any{"step": "one"})
	s.Require().NoError(s.bus.Publish(s.ctx, topic, evt))

	// redelivered each tick until the handler succeeds
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 5*time.Second, 10*time.Millisecond)

	// then marked processed exactly once
	s.Eventually(func() bool {
		n, err := s.a.Count(s.ctx, EventTable, map[string]any{"event_id": evt.ID, "processed": true})
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *DBBusSuite) TestPendingEventDeliveredToLateSubscriber() {
	const topic = "entity.later"
	evt := eventtesting.NewTestEvent(event.TypeEntityCreated, map[string]any{"who": "late"})
	s.Require().NoError(s.bus.Publish(s.ctx, topic, evt))

	received := make(chan *event.Event, 1)
	err := s.bus.Subscribe(s.ctx, topic, func(e *event.Event) error {
		select {
		case received <- e:
		default:
		}
		return nil
	})
	s.Require().NoError(err)

	select {
	case got := <-received:
		s.Equal(evt.ID, got.ID)
		s.Equal(topic, got.Topic)
		s.Equal(map[string]any{"who": "late"}, got.Payload)
		// storage keeps second precision
		s.True(evt.Timestamp.Truncate(time.Second).Equal(got.Timestamp.UTC()))
	case <-time.After(5 * time.Second):
		s.FailNow("pending event was not delivered")
	}
}

func (s *DBBusSuite) TestSubscribeAfterCloseFails() {
	s.Require().NoError(s.bus.Close())
	err := s.bus.Subscribe(s.ctx, "entity.user", func(*event.Event) error { return nil })
	s.Require().Error(err)
	s.Contains(err.Error(), "closed")
}
