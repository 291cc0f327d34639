package tracking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/store"
	storetest "github.com/forgeline/forgeline/internal/testutil"
	"github.com/forgeline/forgeline/internal/tracking"
)

type failingWriter struct{ err error }

func (f failingWriter) RecordEvent(context.Context, *store.Event) error { return f.err }

type panickingWriter struct{}

func (panickingWriter) RecordEvent(context.Context, *store.Event) error { panic("boom") }

type countingTracker struct{ n int }

func (c *countingTracker) Record(context.Context, string, map[string]any) { c.n++ }

func TestRecorder_WritesEvent(t *testing.T) {
	s := storetest.SetupTestStore(t)
	r := tracking.NewRecorder(s, nil)
	ctx := context.Background()

	r.Record(ctx, experiment.EventConversion, map[string]any{
		"experiment_id": "hero",
		"variant_id":    "speed",
		"metric":        "form_submit",
		"value":         2.5,
		"session_id":    "sess-1",
	})

	events, err := s.ListEvents(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventConversion, events[0].Name)
	assert.Equal(t, "speed", events[0].VariantID)
	assert.Equal(t, "form_submit", events[0].Metric)
	assert.Equal(t, 2.5, events[0].Value)
	assert.Equal(t, "sess-1", events[0].SessionID)
}

func TestRecorder_SurvivesCanceledRequest(t *testing.T) {
	s := storetest.SetupTestStore(t)
	r := tracking.NewRecorder(s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Record(ctx, experiment.EventExposure, map[string]any{"experiment_id": "hero", "variant_id": "speed"})

	n, err := s.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorder_SwallowsWriterErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := tracking.NewRecorder(failingWriter{err: errors.New("db locked")}, zap.New(core))

	before := testutil.ToFloat64(tracking.Failures(experiment.EventExposure))
	assert.NotPanics(t, func() {
		r.Record(context.Background(), experiment.EventExposure, map[string]any{"experiment_id": "hero"})
	})

	assert.Equal(t, before+1, testutil.ToFloat64(tracking.Failures(experiment.EventExposure)))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to record tracking event", logs.All()[0].Message)
}

func TestRecorder_RecoversWriterPanic(t *testing.T) {
	r := tracking.NewRecorder(panickingWriter{}, nil)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), experiment.EventExposure, map[string]any{"experiment_id": "hero"})
	})
}

func TestRecorder_NilWriterCountsOnly(t *testing.T) {
	r := tracking.NewRecorder(nil, nil)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), experiment.EventExposure, nil)
	})
}

func TestMulti(t *testing.T) {
	a, b := &countingTracker{}, &countingTracker{}
	m := tracking.Multi{a, b, tracking.LogTracker{Logger: zap.NewNop()}, tracking.LogTracker{}}

	m.Record(context.Background(), experiment.EventExposure, map[string]any{"experiment_id": "hero"})

	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
