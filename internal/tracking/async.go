package tracking

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/forgeline/forgeline/internal/experiment"
)

var droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forgeline_tracking_dropped_total",
	Help: "Tracking events dropped because the buffer was full or closed.",
}, []string{"event"})

type queuedEvent struct {
	ctx   context.Context
	name  string
	props map[string]any
}

// Async hands events to a background goroutine so Record never waits on
// the sink. Events that arrive while the buffer is full are dropped.
type Async struct {
	next   experiment.Tracker
	logger *zap.Logger
	events chan queuedEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ experiment.Tracker = (*Async)(nil)

// NewAsync starts draining into next. Call Close to flush and stop.
func NewAsync(next experiment.Tracker, buffer int, logger *zap.Logger) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		next:   next,
		logger: logger,
		events: make(chan queuedEvent, buffer),
		done:   make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *Async) Record(ctx context.Context, name string, props map[string]any) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		droppedTotal.WithLabelValues(name).Inc()
		return
	}

	select {
	case a.events <- queuedEvent{ctx: context.WithoutCancel(ctx), name: name, props: props}:
	default:
		droppedTotal.WithLabelValues(name).Inc()
		a.logger.Warn("tracking buffer full, dropping event", zap.String("event", name))
	}
}

// Close stops accepting events and waits until the buffered ones are
// written.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	<-a.done
	return nil
}

func (a *Async) drain() {
	defer close(a.done)
	for e := range a.events {
		a.next.Record(e.ctx, e.name, e.props)
	}
}
