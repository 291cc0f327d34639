package store

import (
	"context"
	"time"
)

// Store defines the persistence operations used by the server and CLI
type Store interface {
	// Event operations
	RecordEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, experimentID string) ([]*Event, error)
	CountEvents(ctx context.Context) (int, error)
	SizeBytes(ctx context.Context) (int64, error)

	// Session operations
	Session(id string) *SessionScope
	PurgeSessions(ctx context.Context, idleSince time.Time) (int64, error)

	// Lifecycle
	Close() error
}
