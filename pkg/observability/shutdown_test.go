package observability

import (
	"context"
	"errors"
	"testing"
)

func TestShutdownManager_Shutdown(t *testing.T) {
	var order []int
	sm := NewShutdownManager(NopLogger(), nil, 0)
	sm.RegisterShutdownFunc(func(context.Context) error { order = append(order, 1); return nil })
	sm.RegisterShutdownFunc(func(context.Context) error { order = append(order, 2); return errors.New("close failed") })
	sm.RegisterShutdownFunc(func(context.Context) error { order = append(order, 3); return nil })

	err := sm.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("functions should run in reverse order, got %v", order)
	}
}

func TestPanicError(t *testing.T) {
	if PanicError(nil) != nil {
		t.Error("nil recover value should not produce an error")
	}

	sentinel := errors.New("boom")
	if err := PanicError(sentinel); !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped sentinel, got %v", err)
	}

	func() {
		defer RecoverPanic(NopLogger(), "test")
		panic("recovered")
	}()
}
