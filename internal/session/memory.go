// Package session keeps per-visitor key-value state for the assignment
// engine when no shared database is wanted.
package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	values   map[string]string
	lastSeen time.Time
}

// Memory is an in-process session store. Sessions idle longer than the TTL
// are dropped by a background sweep until Close is called.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemory starts a store whose sweep runs every interval. A zero interval
// disables the sweep; expired sessions are then only dropped on access.
func NewMemory(ttl, interval time.Duration) *Memory {
	m := &Memory{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if interval > 0 && ttl > 0 {
		go m.sweepLoop(interval)
	} else {
		close(m.done)
	}

	return m
}

func (m *Memory) sweepLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

// Sweep drops expired sessions and reports how many were removed.
func (m *Memory) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Close stops the sweep and waits for it to exit.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Session returns a handle on the session with the given id. The session is
// created lazily on first write.
func (m *Memory) Session(id string) *Handle {
	return &Handle{store: m, id: id}
}

// lookup must be called with mu held.
func (m *Memory) lookup(id string) *entry {
	e, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if m.ttl > 0 && e.lastSeen.Before(m.now().Add(-m.ttl)) {
		delete(m.sessions, id)
		return nil
	}
	return e
}

type Handle struct {
	store *Memory
	id    string
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Get(_ context.Context, key string) (string, bool, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	e := h.store.lookup(h.id)
	if e == nil {
		return "", false, nil
	}
	e.lastSeen = h.store.now()
	v, ok := e.values[key]
	return v, ok, nil
}

func (h *Handle) Set(_ context.Context, key, value string) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	e := h.store.lookup(h.id)
	if e == nil {
		e = &entry{values: make(map[string]string)}
		h.store.sessions[h.id] = e
	}
	e.values[key] = value
	e.lastSeen = h.store.now()
	return nil
}

// SetIfAbsent stores value under key unless the key is already set, and
// returns whichever value the session holds afterwards.
func (h *Handle) SetIfAbsent(_ context.Context, key, value string) (string, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	e := h.store.lookup(h.id)
	if e == nil {
		e = &entry{values: make(map[string]string)}
		h.store.sessions[h.id] = e
	}
	e.lastSeen = h.store.now()
	if stored, ok := e.values[key]; ok {
		return stored, nil
	}
	e.values[key] = value
	return value, nil
}
