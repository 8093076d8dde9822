package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func newMockDB(t *testing.T) (*HealthChecker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewHealthChecker(db, nil, "test"), mock
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("healthy database", func(t *testing.T) {
		checker, mock := newMockDB(t)
		mock.ExpectPing()

		status := checker.Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
		if status.Version != "test" {
			t.Errorf("Expected version test, got %s", status.Version)
		}
	})

	t.Run("database down", func(t *testing.T) {
		checker, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		status := checker.Check(context.Background())
		if status.Status != StatusUnhealthy {
			t.Errorf("Expected unhealthy, got %s", status.Status)
		}
		if status.Dependencies["database"].Message != "connection refused" {
			t.Errorf("unexpected message %q", status.Dependencies["database"].Message)
		}
	})

	t.Run("redis down only degrades", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		checker := NewHealthChecker(nil, client, "")
		status := checker.Check(context.Background())
		if status.Status != StatusDegraded {
			t.Errorf("Expected degraded, got %s", status.Status)
		}
	})

	t.Run("redis up", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker(nil, client, "").Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy, got %s", status.Status)
		}
	})
}

func TestHealthRoutes(t *testing.T) {
	checker, mock := newMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New("down"))

	router := mux.NewRouter()
	RegisterHealthRoutes(router, checker)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy body, got %s", status.Status)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness should always be 200, got %d", rec.Code)
	}
}
