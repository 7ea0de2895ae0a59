package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"nurture_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingEvent struct{ BaseEvent }

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishRunsEveryHandler(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
			calls.Add(1)
			return nil
		}))
	}

	bus.Publish(context.Background(), pingEvent{NewBaseEvent()})
	bus.Wait()

	assert.Equal(t, int32(3), calls.Load())
}

func TestPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	boom := errors.New("boom")
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error { return boom }))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error { return nil }))

	err := bus.PublishSync(context.Background(), pingEvent{NewBaseEvent()})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryBus(nil)
	require.NoError(t, bus.PublishSync(context.Background(), pingEvent{NewBaseEvent()}))
	bus.Publish(context.Background(), pingEvent{NewBaseEvent()})
	bus.Wait()
}

type otherPing struct{ BaseEvent }

func (otherPing) EventName() string { return "test.ping" }

func TestOnFiltersByConcreteType(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var got []pingEvent
	On(bus, func(ctx context.Context, e pingEvent) error {
		got = append(got, e)
		return nil
	})

	first := pingEvent{NewBaseEvent()}
	require.NoError(t, bus.PublishSync(context.Background(), first))
	require.NoError(t, bus.PublishSync(context.Background(), otherPing{NewBaseEvent()}))

	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, time.UTC, got[0].OccurredAt().Location())
}
