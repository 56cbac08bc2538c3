package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// Timeout bounds the wait for in-flight envelopes. Default: 30s.
	Timeout time.Duration

	// DrainDelay keeps accepting envelopes for a while after shutdown
	// starts so load balancers can take the instance out of rotation.
	DrainDelay time.Duration

	// OnDrainStart is called once new envelopes start being rejected.
	OnDrainStart func()
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 30 * time.Second,
	}
}

// ShutdownManager tracks in-flight envelopes and drains them on shutdown.
type ShutdownManager struct {
	config ShutdownConfig

	draining  atomic.Bool
	inFlight  atomic.Int64
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &ShutdownManager{
		config: config,
		doneCh: make(chan struct{}),
	}
}

// IsDraining reports whether new envelopes are being rejected.
func (sm *ShutdownManager) IsDraining() bool {
	return sm.draining.Load()
}

// InFlightRequests returns the number of envelopes being handled.
func (sm *ShutdownManager) InFlightRequests() int64 {
	return sm.inFlight.Load()
}

// TrackRequest registers an envelope. It returns false while draining, in
// which case the envelope must be rejected and CompleteRequest not called.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.draining.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// CompleteRequest marks a tracked envelope as finished.
func (sm *ShutdownManager) CompleteRequest() {
	sm.inFlight.Add(-1)
}

// Shutdown starts draining and waits until no envelope is in flight. It
// returns context.DeadlineExceeded if some were still running at the
// configured timeout.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	defer sm.closeOnce.Do(func() { close(sm.doneCh) })

	if sm.config.DrainDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sm.config.DrainDelay):
		}
	}

	sm.draining.Store(true)
	if sm.config.OnDrainStart != nil {
		sm.config.OnDrainStart()
	}

	waitCtx, cancel := context.WithTimeout(ctx, sm.config.Timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for sm.inFlight.Load() > 0 {
		select {
		case <-waitCtx.Done():
			if sm.inFlight.Load() > 0 {
				return waitCtx.Err()
			}
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Done is closed once Shutdown returns.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.doneCh
}

// WithShutdownTimeout bounds how long Serve waits for in-flight envelopes.
func WithShutdownTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.shutdownTimeout = d
	}
}

// WithShutdownDrainDelay keeps accepting envelopes for d after Serve's
// context is canceled.
func WithShutdownDrainDelay(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.drainDelay = d
	}
}
