package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, cfg BusConfig) *Bus {
	t.Helper()
	bus := NewBus(cfg, nil)
	bus.Start(context.Background())
	t.Cleanup(func() { _ = bus.Shutdown(2 * time.Second) })
	return bus
}

func testChange(user, oldRoom, newRoom string) RoomChange {
	return RoomChange{
		User:    user,
		OldRoom: oldRoom,
		NewRoom: newRoom,
		Source:  SourceBLE,
		Time:    time.Now(),
	}
}

func TestBusDeliversToAllListeners(t *testing.T) {
	bus := newTestBus(t, BusConfig{BufferSize: 16, Workers: 1})

	first := &recordingListener{name: "first"}
	second := &recordingListener{name: "second"}
	require.NoError(t, bus.AddListener(first))
	require.NoError(t, bus.AddListener(second))

	require.True(t, bus.Publish(testChange("alice", "", "office")))

	require.Eventually(t, func() bool {
		return len(first.snapshot()) == 1 && len(second.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	got := first.snapshot()[0]
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "office", got.NewRoom)
}

func TestBusRejectsDuplicateListenerName(t *testing.T) {
	bus := NewBus(DefaultBusConfig(), nil)

	require.NoError(t, bus.AddListener(&recordingListener{name: "sink"}))
	err := bus.AddListener(&recordingListener{name: "sink"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestBusPublishFailsWhenNotRunning(t *testing.T) {
	bus := NewBus(DefaultBusConfig(), nil)

	assert.False(t, bus.Publish(testChange("alice", "", "office")))
	assert.Zero(t, bus.Stats().ChangesReceived)
}

func TestBusFailingListenerDoesNotBlockOthers(t *testing.T) {
	bus := newTestBus(t, BusConfig{BufferSize: 16, Workers: 1})

	require.NoError(t, bus.AddListener(ListenerFunc{
		ListenerName: "failing",
		Fn: func(RoomChange) error {
			return errors.New("sink unavailable")
		},
	}))
	healthy := &recordingListener{name: "healthy"}
	require.NoError(t, bus.AddListener(healthy))

	require.True(t, bus.Publish(testChange("alice", "", "office")))

	require.Eventually(t, func() bool {
		return len(healthy.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), bus.Stats().ListenerErrors)
}

func TestBusPanickingListenerIsIsolated(t *testing.T) {
	bus := newTestBus(t, BusConfig{BufferSize: 16, Workers: 1})

	require.NoError(t, bus.AddListener(ListenerFunc{
		ListenerName: "panicking",
		Fn: func(RoomChange) error {
			panic("listener bug")
		},
	}))
	healthy := &recordingListener{name: "healthy"}
	require.NoError(t, bus.AddListener(healthy))

	require.True(t, bus.Publish(testChange("alice", "", "office")))
	require.True(t, bus.Publish(testChange("alice", "office", "kitchen")))

	require.Eventually(t, func() bool {
		return len(healthy.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), bus.Stats().ListenerErrors)
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	// No listeners and a slow consumer window: stop the worker first so the
	// buffer genuinely fills.
	bus := NewBus(BusConfig{BufferSize: 1, Workers: 1}, nil)
	bus.Start(context.Background())
	require.NoError(t, bus.Shutdown(time.Second))
	bus.running.Store(true) // accept publishes with no worker draining

	assert.True(t, bus.Publish(testChange("alice", "", "office")))
	assert.False(t, bus.Publish(testChange("alice", "office", "kitchen")))

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.ChangesReceived)
	assert.Equal(t, uint64(1), stats.ChangesDropped)
}

func TestBusShutdownDrainsBufferedChanges(t *testing.T) {
	bus := NewBus(BusConfig{BufferSize: 128, Workers: 1}, nil)
	rec := &recordingListener{}
	require.NoError(t, bus.AddListener(rec))
	bus.Start(context.Background())

	for i := 0; i < 100; i++ {
		require.True(t, bus.Publish(testChange("alice", "", "office")))
	}
	require.NoError(t, bus.Shutdown(2*time.Second))

	// Every change accepted before shutdown is delivered, not dropped
	// with the buffer.
	assert.Len(t, rec.snapshot(), 100)
	assert.Equal(t, uint64(100), bus.Stats().ChangesHandled)
	assert.Zero(t, bus.Stats().ChangesDropped)
}

func TestBusOrderPreservedWithSingleWorker(t *testing.T) {
	bus := newTestBus(t, BusConfig{BufferSize: 64, Workers: 1})

	rec := &recordingListener{name: "recorder"}
	require.NoError(t, bus.AddListener(rec))

	rooms := []string{"office", "kitchen", "bedroom", "hall", "garage"}
	prev := ""
	for _, room := range rooms {
		require.True(t, bus.Publish(testChange("alice", prev, room)))
		prev = room
	}

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == len(rooms)
	}, 2*time.Second, 5*time.Millisecond)

	for i, change := range rec.snapshot() {
		assert.Equal(t, rooms[i], change.NewRoom)
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := newTestBus(t, BusConfig{BufferSize: 1024, Workers: 1})

	rec := &recordingListener{name: "recorder"}
	require.NoError(t, bus.AddListener(rec))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish(testChange("user", "", "office"))
			}
		}(g)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 400
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(400), bus.Stats().ChangesReceived)
}
