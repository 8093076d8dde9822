package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger appends entries to a JSON-lines file
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64 // Max file size in bytes before rotation
	maxFiles int   // Max number of rotated files to keep
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Directory holding permissions-audit.log
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

const currentLogName = "permissions-audit.log"

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/grant",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}

	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}

	return logger, nil
}

func (l *FileLogger) currentPath() string {
	return filepath.Join(l.basePath, currentLogName)
}

// openLogFile opens or creates the current log file, rotating it first when full
func (l *FileLogger) openLogFile() error {
	filename := l.currentPath()

	if l.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)

	return nil
}

// rotateFile renames the current file with a timestamp suffix
func (l *FileLogger) rotateFile() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	timestamp := time.Now().UTC().Format("2006-01-02-15-04-05.000000000")
	rotatedFile := filepath.Join(l.basePath, fmt.Sprintf("permissions-audit-%s.log", timestamp))

	if err := os.Rename(l.currentPath(), rotatedFile); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if err := l.cleanupOldFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit logs: %v\n", err)
	}

	return nil
}

// cleanupOldFiles removes rotated files beyond the retention limit.
// Rotated names sort chronologically.
func (l *FileLogger) cleanupOldFiles() error {
	files, err := filepath.Glob(filepath.Join(l.basePath, "permissions-audit-*.log"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	if len(files) > l.maxFiles {
		for _, file := range files[:len(files)-l.maxFiles] {
			if err := os.Remove(file); err != nil {
				fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", file, err)
			}
		}
	}

	return nil
}

// Log appends an entry as one JSON line
func (l *FileLogger) Log(ctx context.Context, entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log file is closed")
	}

	if l.rotate {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.openLogFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	if err := l.encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

// History scans the current file for a principal's entries, newest first.
// Rotated files are not consulted.
func (l *FileLogger) History(ctx context.Context, principalID string, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.currentPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var matched []Entry
	decoder := json.NewDecoder(file)
	for {
		var e Entry
		if err := decoder.Decode(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		if e.PrincipalID == principalID {
			matched = append(matched, e)
		}
	}

	// file order is append order; reverse for newest first
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	limit = NormalizeLimit(limit)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	if matched == nil {
		matched = []Entry{}
	}
	return matched, nil
}

// Close closes the file logger
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}

	return nil
}
