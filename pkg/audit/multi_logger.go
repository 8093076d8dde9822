package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger writes every entry to several destinations.
// History is served by the first destination that can read entries back.
type MultiLogger struct {
	loggers []Logger
	async   bool // If true, log asynchronously
	wg      sync.WaitGroup
	errChan chan error
	onError ErrorHandler
}

// ErrorHandler receives failures from asynchronous writes. ctx carries the caller's values.
type ErrorHandler func(ctx context.Context, entry *Entry, err error)

// NewMultiLogger creates a synchronous multi-logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		errChan: make(chan error, len(loggers)*16),
	}
}

// SetAsync sets whether logging should be asynchronous.
// Asynchronous errors go to the error handler and are also kept for Errors.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// SetErrorHandler installs the callback for asynchronous write failures.
// Call it before the first Log.
func (m *MultiLogger) SetErrorHandler(h ErrorHandler) {
	m.onError = h
}

// Log writes the entry to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, entry *Entry) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		return m.logAsync(ctx, entry)
	}

	return m.logSync(ctx, entry)
}

// logSync returns the first error but still writes to every logger
func (m *MultiLogger) logSync(ctx context.Context, entry *Entry) error {
	var firstErr error

	for _, logger := range m.loggers {
		if err := logger.Log(ctx, entry); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (m *MultiLogger) logAsync(ctx context.Context, entry *Entry) error {
	ctx = context.WithoutCancel(ctx)
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, entry); err != nil {
				if m.onError != nil {
					m.onError(ctx, entry, err)
				}
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop error
				}
			}
		}(logger)
	}

	return nil
}

// History reads from the first logger that implements Reader
func (m *MultiLogger) History(ctx context.Context, principalID string, limit int) ([]Entry, error) {
	for _, logger := range m.loggers {
		if r, ok := logger.(Reader); ok {
			return r.History(ctx, principalID, limit)
		}
	}
	return nil, fmt.Errorf("no audit destination supports reading history")
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Errors drains errors from asynchronous writes
func (m *MultiLogger) Errors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close logger: %w", err)
			}
		}
	}

	return firstErr
}
