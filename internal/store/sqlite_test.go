package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/store"
	"github.com/forgeline/forgeline/internal/testutil"
)

func TestOpen(t *testing.T) {
	s := testutil.SetupTestStore(t)
	require.NotNil(t, s)

	n, err := s.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "fresh store has no events")
}

func TestRecordEvent(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	e := &store.Event{
		Name:         store.EventExposure,
		ExperimentID: "hero",
		VariantID:    "speed",
		SessionID:    "sess-1",
		Page:         "/",
	}
	require.NoError(t, s.RecordEvent(ctx, e))

	assert.NotZero(t, e.ID, "event id is set")
	assert.False(t, e.CreatedAt.IsZero(), "created_at defaults to now")
}

func TestListEvents(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	base := time.Unix(1767225600, 0)
	events := []*store.Event{
		{Name: store.EventExposure, ExperimentID: "hero", VariantID: "speed", SessionID: "a", Page: "/", CreatedAt: base},
		{Name: store.EventConversion, ExperimentID: "hero", VariantID: "speed", Metric: "cta_click", Value: 1, SessionID: "a", CreatedAt: base.Add(time.Minute)},
		{Name: store.EventExposure, ExperimentID: "cta", VariantID: "get-quote", SessionID: "a", Page: "/", CreatedAt: base},
	}
	for _, e := range events {
		require.NoError(t, s.RecordEvent(ctx, e))
	}

	got, err := s.ListEvents(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, store.EventExposure, got[0].Name)
	assert.Equal(t, "cta_click", got[1].Metric)
	assert.Equal(t, 1.0, got[1].Value)
	assert.True(t, got[1].CreatedAt.Equal(base.Add(time.Minute)))

	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListEvents_Unknown(t *testing.T) {
	s := testutil.SetupTestStore(t)

	got, err := s.ListEvents(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSession_GetSet(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	sess := s.Session("sess-1")
	assert.Equal(t, "sess-1", sess.ID())

	_, ok, err := sess.Get(ctx, "ab_hero")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sess.Set(ctx, "ab_hero", "speed"))
	require.NoError(t, sess.Set(ctx, "ab_hero", "precision"))

	v, ok, err := sess.Get(ctx, "ab_hero")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "precision", v, "last write wins")

	_, ok, _ = s.Session("sess-2").Get(ctx, "ab_hero")
	assert.False(t, ok, "sessions are isolated")
}

func TestSession_ConcurrentWrites(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := s.Session(fmt.Sprintf("sess-%d", i%2))
			assert.NoError(t, sess.Set(ctx, "ab_hero", fmt.Sprintf("v%d", i)))
		}(i)
	}
	wg.Wait()

	for _, id := range []string{"sess-0", "sess-1"} {
		_, ok, err := s.Session(id).Get(ctx, "ab_hero")
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestSession_SetIfAbsent(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	sess := s.Session("sess-1")

	stored, err := sess.SetIfAbsent(ctx, "ab_hero", "speed")
	require.NoError(t, err)
	assert.Equal(t, "speed", stored)

	stored, err = sess.SetIfAbsent(ctx, "ab_hero", "precision")
	require.NoError(t, err)
	assert.Equal(t, "speed", stored, "existing value is kept")

	v, _, err := sess.Get(ctx, "ab_hero")
	require.NoError(t, err)
	assert.Equal(t, "speed", v)

	stored, err = s.Session("sess-2").SetIfAbsent(ctx, "ab_hero", "precision")
	require.NoError(t, err)
	assert.Equal(t, "precision", stored, "sessions are isolated")
}

func TestSession_SetIfAbsentConcurrent(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	const writers = 8
	results := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := s.Session("sess-1").SetIfAbsent(ctx, "ab_hero", fmt.Sprintf("v%d", i))
			assert.NoError(t, err)
			results[i] = stored
		}(i)
	}
	wg.Wait()

	v, ok, err := s.Session("sess-1").Get(ctx, "ab_hero")
	require.NoError(t, err)
	require.True(t, ok)
	for _, got := range results {
		assert.Equal(t, v, got, "every writer sees the stored winner")
	}
}

func TestPurgeSessions(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Session("old").Set(ctx, "ab_hero", "speed"))

	n, err := s.PurgeSessions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "fresh rows are kept")

	n, err = s.PurgeSessions(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, _ := s.Session("old").Get(ctx, "ab_hero")
	assert.False(t, ok, "purged value is gone")
}

func TestSizeBytes(t *testing.T) {
	s := testutil.SetupTestStore(t)

	size, err := s.SizeBytes(context.Background())
	require.NoError(t, err)
	assert.Positive(t, size)
}
