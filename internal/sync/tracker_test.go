package sync

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeDrainer struct {
	mu     sync.Mutex
	calls  int
	signal chan struct{}
}

func newFakeDrainer() *fakeDrainer {
	return &fakeDrainer{signal: make(chan struct{}, 8)}
}

func (d *fakeDrainer) DrainQueue(ctx context.Context) (DrainResult, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.signal <- struct{}{}
	return DrainResult{Outcomes: []Outcome{}}, nil
}

func (d *fakeDrainer) drainCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDrainer) waitForDrain(t *testing.T) {
	t.Helper()
	select {
	case <-d.signal:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for drain trigger")
	}
}

func TestReconnectTriggersOneDrain(t *testing.T) {
	drainer := newFakeDrainer()
	tracker := NewStatusTracker(drainer, false)
	ctx := context.Background()

	if tracker.Online() {
		t.Fatalf("expected tracker to start offline")
	}

	tracker.SetOnline(ctx, true)
	drainer.waitForDrain(t)

	if !tracker.Online() {
		t.Fatalf("expected tracker online after transition")
	}
	if !tracker.WasOffline() {
		t.Fatalf("expected wasOffline set after reconnect")
	}
	if drainer.drainCalls() != 1 {
		t.Fatalf("expected exactly one drain, got %d", drainer.drainCalls())
	}
}

func TestStayingOnlineDoesNotRetrigger(t *testing.T) {
	drainer := newFakeDrainer()
	tracker := NewStatusTracker(drainer, false)
	ctx := context.Background()

	tracker.SetOnline(ctx, true)
	drainer.waitForDrain(t)

	// Repeated online signals are not transitions.
	tracker.SetOnline(ctx, true)
	tracker.SetOnline(ctx, true)

	select {
	case <-drainer.signal:
		t.Fatalf("repeated online signal triggered a drain")
	case <-time.After(100 * time.Millisecond):
	}
	if drainer.drainCalls() != 1 {
		t.Fatalf("expected exactly one drain, got %d", drainer.drainCalls())
	}
}

func TestGoingOfflineClearsWasOffline(t *testing.T) {
	drainer := newFakeDrainer()
	tracker := NewStatusTracker(drainer, false)
	ctx := context.Background()

	tracker.SetOnline(ctx, true)
	drainer.waitForDrain(t)
	if !tracker.WasOffline() {
		t.Fatalf("expected wasOffline after reconnect")
	}

	tracker.SetOnline(ctx, false)
	if tracker.Online() {
		t.Fatalf("expected tracker offline")
	}
	if tracker.WasOffline() {
		t.Fatalf("wasOffline must clear on disconnect")
	}

	// A second reconnect counts as a fresh transition.
	tracker.SetOnline(ctx, true)
	drainer.waitForDrain(t)
	if drainer.drainCalls() != 2 {
		t.Fatalf("expected two drains across two reconnects, got %d", drainer.drainCalls())
	}
}

func TestInitiallyOnlineNeverReportsWasOffline(t *testing.T) {
	drainer := newFakeDrainer()
	tracker := NewStatusTracker(drainer, true)
	ctx := context.Background()

	tracker.SetOnline(ctx, true)
	if tracker.WasOffline() {
		t.Fatalf("always-online tracker must not report a reconnect")
	}
	if drainer.drainCalls() != 0 {
		t.Fatalf("expected no drains, got %d", drainer.drainCalls())
	}
}

func TestProbingFeedsReachability(t *testing.T) {
	drainer := newFakeDrainer()
	tracker := NewStatusTracker(drainer, false)
	client := &fakeRemote{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.StartProbing(ctx, client, 10*time.Millisecond)

	drainer.waitForDrain(t)
	if !tracker.Online() {
		t.Fatalf("expected probing to mark tracker online")
	}
}
