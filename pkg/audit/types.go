package audit

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHistoryLimit is used when a caller asks for history without a limit
	DefaultHistoryLimit = 20

	// MaxHistoryLimit caps a single history read
	MaxHistoryLimit = 500
)

// Entry is an immutable record of one permission change
type Entry struct {
	ID           string          `json:"id"`
	PrincipalID  string          `json:"principal_id"`
	Actor        string          `json:"actor"`
	OldOverrides map[string]bool `json:"old_overrides"`
	NewOverrides map[string]bool `json:"new_overrides"`
	ChangedKeys  []string        `json:"changed_keys"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewEntry builds an entry with a time-ordered id and the current timestamp
func NewEntry(principalID, actor string, before, after map[string]bool, changedKeys []string, reason string) *Entry {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if changedKeys == nil {
		changedKeys = []string{}
	}
	return &Entry{
		ID:           id.String(),
		PrincipalID:  principalID,
		Actor:        actor,
		OldOverrides: before,
		NewOverrides: after,
		ChangedKeys:  changedKeys,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
}

// NormalizeLimit clamps a requested history size into [1, MaxHistoryLimit]
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
