// Package tracking turns engine events into stored rows and metrics. Every
// failure is logged and dropped; a tracking problem never reaches a visitor.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/store"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_experiment_events_total",
		Help: "Experiment events by name, experiment and variant.",
	}, []string{"event", "experiment", "variant"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_tracking_failures_total",
		Help: "Tracking events that could not be written.",
	}, []string{"event"})
)

// EventWriter persists a tracking event.
type EventWriter interface {
	RecordEvent(ctx context.Context, e *store.Event) error
}

type Recorder struct {
	writer  EventWriter
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

var _ experiment.Tracker = (*Recorder)(nil)

// NewRecorder writes through w, which may be nil to only count events.
func NewRecorder(w EventWriter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		writer:  w,
		logger:  logger,
		timeout: 2 * time.Second,
		now:     time.Now,
	}
}

func (r *Recorder) Record(ctx context.Context, name string, props map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			failuresTotal.WithLabelValues(name).Inc()
			r.logger.Error("tracking sink panicked", zap.String("event", name), zap.Any("panic", p))
		}
	}()

	e := eventFromProps(name, props)
	e.CreatedAt = r.now()
	eventsTotal.WithLabelValues(name, e.ExperimentID, e.VariantID).Inc()

	if r.writer == nil {
		return
	}

	// The request may already be finishing; tracking gets its own deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.writer.RecordEvent(writeCtx, e); err != nil {
		failuresTotal.WithLabelValues(name).Inc()
		r.logger.Warn("failed to record tracking event",
			zap.String("event", name),
			zap.String("experiment", e.ExperimentID),
			zap.Error(err))
	}
}

func eventFromProps(name string, props map[string]any) *store.Event {
	e := &store.Event{Name: store.EventName(name)}
	for k, v := range props {
		switch k {
		case "experiment_id":
			e.ExperimentID = asString(v)
		case "variant_id":
			e.VariantID = asString(v)
		case "metric":
			e.Metric = asString(v)
		case "value":
			e.Value = asFloat(v)
		case "session_id":
			e.SessionID = asString(v)
		case "page":
			e.Page = asString(v)
		}
	}
	return e
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Multi fans one event out to several trackers.
type Multi []experiment.Tracker

func (m Multi) Record(ctx context.Context, name string, props map[string]any) {
	for _, t := range m {
		t.Record(ctx, name, props)
	}
}

// LogTracker writes every event to the log at debug level.
type LogTracker struct {
	Logger *zap.Logger
}

func (l LogTracker) Record(_ context.Context, name string, props map[string]any) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("tracking event", zap.String("event", name), zap.Any("props", props))
}
