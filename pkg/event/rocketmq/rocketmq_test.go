package rocketmq

import (
	"errors"
	"testing"

	"github.com/apache/rocketmq-client-go/v2/consumer"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entable/entable/pkg/event"
	eventtesting "github.com/entable/entable/pkg/event/testing"
)

// The delivery path is exercised without a broker: deliver is what the
// push-consumer callback runs per message.

func newBareBus() *Bus {
	return &Bus{log: zap.NewNop(), handlers: make(map[string][]event.Handler)}
}

func marshalEvent(t *testing.T, evt event.Event) []byte {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return data
}

func TestDeliverRunsHandlers(t *testing.T) {
	bus := newBareBus()
	var got *event.Event
	bus.handlers["entity.user"] = []event.Handler{func(e *event.Event) error {
		got = e
		return nil
	}}

	evt := eventtesting.NewTestEvent(event.TypeEntityCreated, map[string]any{"name": "Ada"})
	evt.Topic = "entity.user"

	res := bus.deliver("entity.user", marshalEvent(t, evt))
	assert.Equal(t, consumer.ConsumeSuccess, res)
	require.NotNil(t, got)
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, evt.Payload, got.Payload)
}

func TestDeliverFansOut(t *testing.T) {
	bus := newBareBus()
	calls := 0
	h := func(*event.Event) error { calls++; return nil }
	bus.handlers["entity.user"] = []event.Handler{h, h}

	res := bus.deliver("entity.user", marshalEvent(t, eventtesting.NewTestEvent(event.TypeEntityUpdated, nil)))
	assert.Equal(t, consumer.ConsumeSuccess, res)
	assert.Equal(t, 2, calls)
}

func TestDeliverRetryLaterOnErrRetry(t *testing.T) {
	bus := newBareBus()
	bus.handlers["entity.user"] = []event.Handler{func(*event.Event) error {
		return event.ErrRetry
	}}

	res := bus.deliver("entity.user", marshalEvent(t, eventtesting.NewTestEvent(event.TypeEntityUpdated, nil)))
	assert.Equal(t, consumer.ConsumeRetryLater, res)
}

func TestDeliverRetryLaterOnHandlerFailure(t *testing.T) {
	bus := newBareBus()
	bus.handlers["entity.user"] = []event.Handler{func(*event.Event) error {
		return errors.New("boom")
	}}

	res := bus.deliver("entity.user", marshalEvent(t, eventtesting.NewTestEvent(event.TypeEntityDeleted, nil)))
	assert.Equal(t, consumer.ConsumeRetryLater, res)
}

func TestDeliverSkipsPoisonMessage(t *testing.T) {
	bus := newBareBus()
	called := false
	bus.handlers["entity.user"] = []event.Handler{func(*event.Event) error {
		called = true
		return nil
	}}

	assert.Equal(t, consumer.ConsumeSuccess, bus.deliver("entity.user", []byte("not json")))
	assert.False(t, called, "handlers must not see undecodable messages")
}

func TestDeliverSkipsInvalidEvent(t *testing.T) {
	bus := newBareBus()
	called := false
	bus.handlers["entity.user"] = []event.Handler{func(*event.Event) error {
		called = true
		return nil
	}}

	body, err := json.Marshal(event.Event{ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, consumer.ConsumeSuccess, bus.deliver("entity.user", body))
	assert.False(t, called)
}
