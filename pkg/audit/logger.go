package audit

import (
	"context"
)

// Logger appends permission-change entries.
// There is no update or delete operation; entries are never changed once written.
type Logger interface {
	// Log appends an entry
	Log(ctx context.Context, entry *Entry) error

	// Close flushes and releases the logger
	Close() error
}

// Reader retrieves the change history of a principal
type Reader interface {
	// History returns up to limit entries for the principal, newest first
	History(ctx context.Context, principalID string, limit int) ([]Entry, error)
}

// Store is an append-only log that can also be read back
type Store interface {
	Logger
	Reader
}

// NoOpLogger discards entries (used when auditing is disabled)
type NoOpLogger struct{}

func (NoOpLogger) Log(ctx context.Context, entry *Entry) error {
	return nil
}

func (NoOpLogger) History(ctx context.Context, principalID string, limit int) ([]Entry, error) {
	return []Entry{}, nil
}

func (NoOpLogger) Close() error {
	return nil
}
