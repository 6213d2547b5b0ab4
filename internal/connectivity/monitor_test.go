package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

var errRefused = errors.New("connection refused")

func TestRefreshOnline(t *testing.T) {
	m := NewMonitor(
		WithProbes([]string{"probe-a:53", "probe-b:53"}),
		WithDialFunc(func(ctx context.Context, addr string) error {
			if addr == "probe-b:53" {
				return nil
			}
			return errRefused
		}),
	)

	state := m.Refresh(context.Background())
	if !state.Online {
		t.Error("expected online")
	}
	if state.Via != "probe-b:53" {
		t.Errorf("expected via probe-b:53, got %q", state.Via)
	}
	if !state.Known() {
		t.Error("expected state to be known after refresh")
	}
}

func TestRefreshOffline(t *testing.T) {
	m := NewMonitor(
		WithProbes([]string{"probe-a:53"}),
		WithDialFunc(func(ctx context.Context, addr string) error {
			return errRefused
		}),
	)

	state := m.Refresh(context.Background())
	if state.Online {
		t.Error("expected offline")
	}
	if state.Via != "" {
		t.Errorf("expected empty via, got %q", state.Via)
	}
}

func TestRefreshStopsAtFirstSuccess(t *testing.T) {
	var dials int32
	m := NewMonitor(
		WithProbes([]string{"probe-a:53", "probe-b:53", "probe-c:53"}),
		WithDialFunc(func(ctx context.Context, addr string) error {
			atomic.AddInt32(&dials, 1)
			return nil
		}),
	)

	m.Refresh(context.Background())
	if got := atomic.LoadInt32(&dials); got != 1 {
		t.Errorf("expected 1 dial, got %d", got)
	}
}

func TestCurrentIsUnknownBeforeFirstProbe(t *testing.T) {
	m := NewMonitor()
	if m.Current().Known() {
		t.Error("expected unknown state before any probe")
	}
}

func TestStartPublishesAndTicks(t *testing.T) {
	var dials int32
	m := NewMonitor(
		WithProbes([]string{"probe-a:53"}),
		WithInterval(20*time.Millisecond),
		WithDialFunc(func(ctx context.Context, addr string) error {
			atomic.AddInt32(&dials, 1)
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&dials) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 probes, got %d", atomic.LoadInt32(&dials))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !m.Current().Online {
		t.Error("expected online snapshot")
	}
}

func TestStateTransition(t *testing.T) {
	var online atomic.Bool
	online.Store(true)

	m := NewMonitor(
		WithProbes([]string{"probe-a:53"}),
		WithDialFunc(func(ctx context.Context, addr string) error {
			if online.Load() {
				return nil
			}
			return errRefused
		}),
	)

	ctx := context.Background()
	if state := m.Refresh(ctx); !state.Online {
		t.Fatal("expected online")
	}

	online.Store(false)
	if state := m.Refresh(ctx); state.Online {
		t.Fatal("expected offline after network loss")
	}
	if !m.Current().Known() {
		t.Error("expected known state")
	}
}

func TestStopWithoutStart(t *testing.T) {
	m := NewMonitor()
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}

func TestDoubleStart(t *testing.T) {
	var dials int32
	m := NewMonitor(
		WithProbes([]string{"probe-a:53"}),
		WithInterval(time.Hour),
		WithDialFunc(func(ctx context.Context, addr string) error {
			atomic.AddInt32(&dials, 1)
			return nil
		}),
	)

	ctx := context.Background()
	m.Start(ctx)
	m.Start(ctx) // second call is a no-op
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&dials) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give a second loop a chance to double-probe, then check it did not.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&dials); got != 1 {
		t.Errorf("expected exactly 1 probe, got %d", got)
	}
}

func ExampleMonitor_Current() {
	m := NewMonitor(WithDialFunc(func(ctx context.Context, addr string) error {
		return nil
	}))
	m.Refresh(context.Background())
	fmt.Println(m.Current().Online)
	// Output: true
}
