package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fuellog-sync-service/internal/logger"
	"fuellog-sync-service/internal/remote"
)

// Drainer is the part of the engine the tracker needs.
type Drainer interface {
	DrainQueue(ctx context.Context) (DrainResult, error)
}

// StatusTracker observes network reachability transitions. A transition from
// unreachable to reachable triggers one drain; the engine's reentrancy guard
// absorbs any overlap with manual or scheduled triggers. The previous-offline
// flag lets callers distinguish "just reconnected" from "was always online"
// when deciding whether to announce a sync.
type StatusTracker struct {
	drainer Drainer

	mu         sync.Mutex
	online     bool
	wasOffline bool
}

func NewStatusTracker(drainer Drainer, initiallyOnline bool) *StatusTracker {
	return &StatusTracker{
		drainer: drainer,
		online:  initiallyOnline,
	}
}

// SetOnline records a reachability signal from the host environment. The
// offline-to-online transition kicks off a background drain.
func (t *StatusTracker) SetOnline(ctx context.Context, online bool) {
	t.mu.Lock()
	transitioned := online && !t.online
	if transitioned {
		t.wasOffline = true
	}
	if !online {
		t.wasOffline = false
	}
	changed := online != t.online
	t.online = online
	t.mu.Unlock()

	if changed {
		logger.Log.Info("network reachability changed", zap.Bool("online", online))
	}
	if transitioned {
		go func() {
			if _, err := t.drainer.DrainQueue(ctx); err != nil {
				logger.Log.Error("reconnect drain failed", zap.Error(err))
			}
		}()
	}
}

// Online reports current reachability.
func (t *StatusTracker) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

// WasOffline reports whether the current online period was preceded by an
// offline one. Cleared when the device goes offline again.
func (t *StatusTracker) WasOffline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wasOffline
}

// StartProbing polls the remote service health endpoint and feeds the result
// into SetOnline, so reachability is detected even when the host shell never
// reports connectivity events. Blocks until ctx is done.
func (t *StatusTracker) StartProbing(ctx context.Context, client remote.Client, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			err := client.Ping(probeCtx)
			cancel()
			t.SetOnline(ctx, err == nil)
		}
	}
}
