package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PrincipalStore is a keyed record store of principals with point read/write semantics
type PrincipalStore interface {
	// GetPrincipal returns ErrNotFound when id is unknown
	GetPrincipal(ctx context.Context, id string) (*Principal, error)

	// CreatePrincipal returns ErrAlreadyExists when id is taken
	CreatePrincipal(ctx context.Context, p *Principal) error

	// SetOverrides replaces the stored override map in full
	SetOverrides(ctx context.Context, id string, overrides map[string]bool) error

	// ListPrincipals returns every principal ordered by id
	ListPrincipals(ctx context.Context) ([]Principal, error)
}

// SQLStore persists principals in the principals table
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new principal store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// GetPrincipal retrieves a principal by ID
func (s *SQLStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	query := `
		SELECT id, role, permission_overrides, created_at, updated_at
		FROM principals
		WHERE id = $1
	`

	var p Principal
	var overridesJSON sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Role,
		&overridesJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get principal", Err: err}
	}

	if p.Overrides, err = decodeOverrides(overridesJSON); err != nil {
		return nil, &PersistenceError{Op: "decode overrides for " + id, Err: err}
	}

	return &p, nil
}

// CreatePrincipal provisions a new principal
func (s *SQLStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	overridesJSON, err := encodeOverrides(p.Overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}

	query := `
		INSERT INTO principals (id, role, permission_overrides, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query, p.ID, p.Role, overridesJSON, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, p.ID)
		}
		return &PersistenceError{Op: "create principal", Err: err}
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// SetOverrides replaces a principal's override map
func (s *SQLStore) SetOverrides(ctx context.Context, id string, overrides map[string]bool) error {
	overridesJSON, err := encodeOverrides(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}

	query := `
		UPDATE principals
		SET permission_overrides = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, overridesJSON, time.Now().UTC(), id)
	if err != nil {
		return &PersistenceError{Op: "update overrides", Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "update overrides", Err: err}
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// ListPrincipals returns every principal ordered by id
func (s *SQLStore) ListPrincipals(ctx context.Context) ([]Principal, error) {
	query := `
		SELECT id, role, permission_overrides, created_at, updated_at
		FROM principals
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &PersistenceError{Op: "list principals", Err: err}
	}
	defer rows.Close()

	var principals []Principal
	for rows.Next() {
		var p Principal
		var overridesJSON sql.NullString
		if err := rows.Scan(&p.ID, &p.Role, &overridesJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, &PersistenceError{Op: "scan principal", Err: err}
		}
		if p.Overrides, err = decodeOverrides(overridesJSON); err != nil {
			return nil, &PersistenceError{Op: "decode overrides for " + p.ID, Err: err}
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list principals", Err: err}
	}

	return principals, nil
}

// Ping checks connectivity to the backing database
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeOverrides(m map[string]bool) (string, error) {
	if m == nil {
		m = map[string]bool{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeOverrides(raw sql.NullString) (map[string]bool, error) {
	m := map[string]bool{}
	if !raw.Valid || raw.String == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// isUniqueViolation recognises duplicate-key errors from postgres and sqlite
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
