package experiment

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	assignmentKeyPrefix = "ab_"
	conversionKeyPrefix = "abconv_"

	EventExposure   = "experiment_exposure"
	EventConversion = "experiment_conversion"
)

// Session is the key-value storage scoped to one visitor session.
//
// SetIfAbsent must be atomic: when several callers race on the same key,
// exactly one value is stored and every caller gets that value back.
type Session interface {
	ID() string
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetIfAbsent(ctx context.Context, key, value string) (stored string, err error)
}

// Tracker receives exposure and conversion events. Implementations must not
// block the caller on failure.
type Tracker interface {
	Record(ctx context.Context, name string, props map[string]any)
}

type nopTracker struct{}

func (nopTracker) Record(context.Context, string, map[string]any) {}

type Engine struct {
	registry *Registry
	tracker  Tracker
	source   Source
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Engine)

func WithTracker(t Tracker) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracker = t
		}
	}
}

func WithSource(src Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.source = src
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(registry *Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = &Registry{byID: map[string]*Experiment{}}
	}
	e := &Engine{
		registry: registry,
		tracker:  nopTracker{},
		source:   DefaultSource,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// Resolve returns the experiment when it is active and inside its date
// window, nil otherwise.
func (e *Engine) Resolve(name string) *Experiment {
	exp, ok := e.registry.Get(name)
	if !ok || !exp.Running(e.now()) {
		return nil
	}
	return exp
}

// Assign returns the session's variant for experimentID, drawing and storing
// one on first exposure. It never fails: anything unresolvable is control.
func (e *Engine) Assign(ctx context.Context, sess Session, experimentID, page string) Assignment {
	exp := e.Resolve(experimentID)
	if exp == nil {
		return controlAssignment(experimentID)
	}
	return e.assign(ctx, sess, exp, page)
}

// ForPage assigns every running experiment targeting page.
func (e *Engine) ForPage(ctx context.Context, sess Session, page string) []Assignment {
	now := e.now()
	assignments := []Assignment{}
	for _, exp := range e.registry.order {
		if !exp.Running(now) || !exp.MatchesPage(page) {
			continue
		}
		assignments = append(assignments, e.assign(ctx, sess, exp, page))
	}
	return assignments
}

func (e *Engine) assign(ctx context.Context, sess Session, exp *Experiment, page string) Assignment {
	key := assignmentKeyPrefix + exp.ID

	if stored, ok := e.sessionGet(ctx, sess, key); ok {
		if v, exists := exp.Variant(stored); exists {
			return Assignment{ExperimentID: exp.ID, VariantID: v.ID, Content: v.Content}
		}
	}

	idx := Pick(exp.Variants, e.source)
	v := exp.Variants[idx]

	if sess != nil {
		winner, err := sess.SetIfAbsent(ctx, key, v.ID)
		if err == nil && winner != v.ID {
			// Another request for this session stored its draw first.
			if w, exists := exp.Variant(winner); exists {
				return Assignment{ExperimentID: exp.ID, VariantID: w.ID, Content: w.Content}
			}
			// The stored variant was removed from the experiment.
			err = sess.Set(ctx, key, v.ID)
		}
		if err != nil {
			e.logger.Warn("failed to persist assignment",
				zap.String("experiment", exp.ID),
				zap.String("variant", v.ID),
				zap.Error(err))
		}
	}

	e.tracker.Record(ctx, EventExposure, map[string]any{
		"experiment_id": exp.ID,
		"variant_id":    v.ID,
		"page":          page,
		"session_id":    sessionID(sess),
	})

	return Assignment{ExperimentID: exp.ID, VariantID: v.ID, Content: v.Content}
}

// RecordConversion appends a conversion for the session's assigned variant.
// It reports false, recording nothing, when the session was never exposed.
func (e *Engine) RecordConversion(ctx context.Context, sess Session, experimentID, metric string, value float64) bool {
	variantID, ok := e.sessionGet(ctx, sess, assignmentKeyPrefix+experimentID)
	if !ok {
		return false
	}
	if value == 0 {
		value = 1
	}

	event := ConversionEvent{
		ExperimentID: experimentID,
		VariantID:    variantID,
		Metric:       metric,
		Value:        value,
		Timestamp:    e.now(),
	}

	key := conversionKeyPrefix + experimentID
	events := e.conversions(ctx, sess, key)
	events = append(events, event)
	if data, err := json.Marshal(events); err == nil {
		if err := sess.Set(ctx, key, string(data)); err != nil {
			e.logger.Warn("failed to persist conversion",
				zap.String("experiment", experimentID),
				zap.Error(err))
		}
	}

	e.tracker.Record(ctx, EventConversion, map[string]any{
		"experiment_id": experimentID,
		"variant_id":    variantID,
		"metric":        metric,
		"value":         value,
		"session_id":    sessionID(sess),
	})

	return true
}

// Conversions returns the conversions accumulated in the session.
func (e *Engine) Conversions(ctx context.Context, sess Session, experimentID string) []ConversionEvent {
	return e.conversions(ctx, sess, conversionKeyPrefix+experimentID)
}

func (e *Engine) conversions(ctx context.Context, sess Session, key string) []ConversionEvent {
	raw, ok := e.sessionGet(ctx, sess, key)
	if !ok {
		return nil
	}
	var events []ConversionEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		e.logger.Warn("discarding unreadable conversion log", zap.String("key", key), zap.Error(err))
		return nil
	}
	return events
}

func (e *Engine) sessionGet(ctx context.Context, sess Session, key string) (string, bool) {
	if sess == nil {
		return "", false
	}
	value, ok, err := sess.Get(ctx, key)
	if err != nil {
		e.logger.Warn("failed to read session", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, ok && value != ""
}

func sessionID(sess Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID()
}
