package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/observability/metrics"
)

// Listener receives committed room transitions. Implementations must treat
// the change as read-only; a returned error is logged and counted but does
// not affect the committed state or delivery to other listeners.
type Listener interface {
	// Name returns the listener name for identification
	Name() string

	// HandleRoomChange processes a single committed room transition
	HandleRoomChange(change RoomChange) error
}

// ListenerFunc adapts a plain function into a Listener.
type ListenerFunc struct {
	ListenerName string
	Fn           func(change RoomChange) error
}

func (l ListenerFunc) Name() string { return l.ListenerName }

func (l ListenerFunc) HandleRoomChange(change RoomChange) error { return l.Fn(change) }

// BusStats contains runtime statistics for monitoring.
type BusStats struct {
	ChangesReceived uint64
	ChangesHandled  uint64
	ChangesDropped  uint64
	ListenerErrors  uint64
}

// BusConfig holds listener bus configuration.
type BusConfig struct {
	BufferSize int
	Workers    int
}

// DefaultBusConfig returns the default listener bus configuration. A single
// worker keeps notification order intact across users.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		BufferSize: 1024,
		Workers:    1,
	}
}

// Bus dispatches room-change notifications to registered listeners from
// dedicated worker goroutines, so a slow or failing listener never blocks
// ingestion. Publishing is non-blocking: when the buffer is full the change
// is dropped and counted.
type Bus struct {
	changeChan chan RoomChange
	cfg        BusConfig

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	mu        sync.Mutex
	listeners []Listener

	stats   BusStats
	logger  *slog.Logger
	metrics *metrics.PresenceMetrics
}

// NewBus creates a listener bus. Metrics may be nil.
func NewBus(cfg BusConfig, m *metrics.PresenceMetrics) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBusConfig().BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultBusConfig().Workers
	}
	return &Bus{
		changeChan: make(chan RoomChange, cfg.BufferSize),
		cfg:        cfg,
		logger:     logging.ForService("presence-bus"),
		metrics:    m,
	}
}

// AddListener registers a new listener. Listener names must be unique.
func (b *Bus) AddListener(l Listener) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.listeners {
		if existing.Name() == l.Name() {
			return fmt.Errorf("listener %s already registered", l.Name())
		}
	}
	b.listeners = append(b.listeners, l)

	b.logger.Info("registered room-change listener", "listener", l.Name())
	return nil
}

// Publish enqueues a change without blocking. Returns false if the bus is
// not running or the buffer is full.
func (b *Bus) Publish(change RoomChange) bool {
	if !b.running.Load() {
		return false
	}

	select {
	case b.changeChan <- change:
		atomic.AddUint64(&b.stats.ChangesReceived, 1)
		return true
	default:
		atomic.AddUint64(&b.stats.ChangesDropped, 1)
		if b.metrics != nil {
			b.metrics.ChangesDropped.Inc()
		}
		b.logger.Debug("room change dropped due to full buffer",
			"user", change.User, "new_room", change.NewRoom)
		return false
	}
}

// Start begins the worker goroutines. The bus stops when ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	if b.running.Swap(true) {
		return // Already running
	}

	ctx, b.cancel = context.WithCancel(ctx)

	b.logger.Info("starting listener bus workers", "count", b.cfg.Workers)
	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
}

// worker drains changes from the channel and dispatches them.
func (b *Bus) worker(ctx context.Context, id int) {
	defer b.wg.Done()

	logger := b.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			// Deliver what is already buffered before exiting, so a change
			// committed just before shutdown is not silently lost.
			for {
				select {
				case change := <-b.changeChan:
					b.dispatch(change, logger)
				default:
					logger.Debug("worker stopping due to context cancellation")
					return
				}
			}
		case change := <-b.changeChan:
			b.dispatch(change, logger)
		}
	}
}

// dispatch delivers one change to every registered listener. A failing or
// panicking listener is isolated: it is logged and counted, and delivery
// continues with the remaining listeners.
func (b *Bus) dispatch(change RoomChange, logger *slog.Logger) {
	b.mu.Lock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.listenerError()
					logger.Error("listener panicked",
						"listener", l.Name(),
						"panic", r,
						"user", change.User,
					)
				}
			}()

			if err := l.HandleRoomChange(change); err != nil {
				b.listenerError()
				logger.Error("listener error",
					"listener", l.Name(),
					"error", err,
					"user", change.User,
				)
			} else {
				atomic.AddUint64(&b.stats.ChangesHandled, 1)
			}
		}()
	}
}

func (b *Bus) listenerError() {
	atomic.AddUint64(&b.stats.ListenerErrors, 1)
	if b.metrics != nil {
		b.metrics.ListenerErrors.Inc()
	}
}

// Shutdown stops accepting new changes and waits for the workers to drain
// the buffer and exit.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if !b.running.Swap(false) {
		return nil
	}

	b.logger.Info("shutting down listener bus", "timeout", timeout)
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("listener bus shutdown complete")
		return nil
	case <-time.After(timeout):
		b.logger.Warn("listener bus shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// Stats returns current bus statistics.
func (b *Bus) Stats() BusStats {
	return BusStats{
		ChangesReceived: atomic.LoadUint64(&b.stats.ChangesReceived),
		ChangesHandled:  atomic.LoadUint64(&b.stats.ChangesHandled),
		ChangesDropped:  atomic.LoadUint64(&b.stats.ChangesDropped),
		ListenerErrors:  atomic.LoadUint64(&b.stats.ListenerErrors),
	}
}
