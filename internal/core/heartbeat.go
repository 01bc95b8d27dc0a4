package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Default heartbeat timings.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTimeout  = time.Second
)

// Pinger sends a liveness probe and blocks until it is acknowledged or ctx ends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TimerState is the state of the per-connection dead-peer timer.
type TimerState int32

const (
	// TimerIdle waits for the next probe interval.
	TimerIdle TimerState = iota
	// TimerArmed has a probe in flight and a deadline running.
	TimerArmed
	// TimerFired means the deadline passed without an acknowledgement.
	TimerFired
	// TimerStopped means the heartbeat was cancelled.
	TimerStopped
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerArmed:
		return "armed"
	case TimerFired:
		return "fired"
	case TimerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Heartbeat probes a connection every interval and calls onTimeout once if a
// probe is not acknowledged within timeout. Fired and Stopped are terminal.
type Heartbeat struct {
	pinger    Pinger
	interval  time.Duration
	timeout   time.Duration
	onTimeout func()

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHeartbeat builds an idle heartbeat. Zero durations fall back to defaults.
func NewHeartbeat(p Pinger, interval, timeout time.Duration, onTimeout func()) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	if onTimeout == nil {
		onTimeout = func() {}
	}
	return &Heartbeat{
		pinger:    p,
		interval:  interval,
		timeout:   timeout,
		onTimeout: onTimeout,
		stop:      make(chan struct{}),
	}
}

// State returns the current timer state.
func (h *Heartbeat) State() TimerState {
	return TimerState(h.state.Load())
}

// Run probes until the heartbeat fires, is stopped, or ctx is done.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.stop:
			return
		case <-ticker.C:
		}

		if !h.transition(TimerIdle, TimerArmed) {
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.pinger.Ping(pingCtx)
		cancel()

		if err == nil {
			if !h.transition(TimerArmed, TimerIdle) {
				return
			}
			continue
		}

		// A cancelled parent means the session is closing on its own.
		if ctx.Err() != nil {
			h.Stop()
			return
		}
		if h.transition(TimerArmed, TimerFired) {
			h.onTimeout()
		}
		return
	}
}

// Stop cancels the heartbeat. It is safe to call more than once and after
// the timer fired; a fired timer stays fired.
func (h *Heartbeat) Stop() {
	for {
		cur := h.State()
		if cur == TimerFired || cur == TimerStopped {
			break
		}
		if h.transition(cur, TimerStopped) {
			break
		}
	}
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Heartbeat) transition(from, to TimerState) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}
