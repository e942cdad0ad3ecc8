package grid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newUUIDForTest() uuid.UUID { return uuid.New() }

func TestEventBusSubscribeOrder(t *testing.T) {
	b := NewEventBus()
	var order []int

	b.Subscribe(EventBatchChange, func(View, EventValue) { order = append(order, 1) })
	b.Subscribe(EventBatchChange, func(View, EventValue) { order = append(order, 2) })
	b.Subscribe(EventBatchChange, func(View, EventValue) { order = append(order, 3) })

	b.Emit(View{}, EventBatchChange, EventValue{Name: EventBatchChange})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEventBusUnsubscribe(t *testing.T) {
	b := NewEventBus()
	var calls int

	id := b.Subscribe(EventBatchChange, func(View, EventValue) { calls++ })
	b.Unsubscribe(EventBatchChange, id)
	b.Emit(View{}, EventBatchChange, EventValue{})

	assert.Equal(t, 0, calls)
	_, ok := b.subs[EventBatchChange]
	assert.False(t, ok, "name should be dropped once its last handler unsubscribes")
}

func TestEventBusUnsubscribeUnknownIDIsNoop(t *testing.T) {
	b := NewEventBus()
	var calls int
	b.Subscribe(EventBatchChange, func(View, EventValue) { calls++ })

	b.Unsubscribe(EventBatchChange, newUUIDForTest())
	b.Emit(View{}, EventBatchChange, EventValue{})

	assert.Equal(t, 1, calls)
}

func TestEventBusEmitUnknownNameIsNoop(t *testing.T) {
	b := NewEventBus()
	assert.NotPanics(t, func() {
		b.Emit(View{}, EventName("Unregistered"), EventValue{})
	})
}
