package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestIPLimiter_ForgetsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiter(rate.Every(time.Minute), 1)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("10.0.0.1"), "first request is allowed")
	require.False(t, l.Allow("10.0.0.1"), "second request is throttled")

	now = now.Add(limiterIdle + time.Second)
	require.True(t, l.Allow("10.0.0.2"), "new client is allowed")
	assert.Equal(t, 1, l.Len(), "idle client is dropped")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:41234"
	assert.Equal(t, "192.0.2.10", clientIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(req), "raw address fallback")
}
