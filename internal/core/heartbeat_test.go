package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatFiresOnceWithoutPong(t *testing.T) {
	var fired atomic.Int32
	hb := NewHeartbeat(&fakePinger{}, 10*time.Millisecond, 10*time.Millisecond, func() {
		fired.Add(1)
	})

	done := make(chan struct{})
	go func() {
		hb.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not fire")
	}

	// Stop after firing must not re-fire or change the terminal state.
	hb.Stop()
	hb.Stop()

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, TimerFired, hb.State())
}

func TestHeartbeatStaysAliveWhileAcknowledged(t *testing.T) {
	var fired atomic.Int32
	p := &fakePinger{ack: func() error { return nil }, calls: make(chan struct{}, 1)}
	hb := NewHeartbeat(p, 5*time.Millisecond, 10*time.Millisecond, func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	for range 3 {
		select {
		case <-p.calls:
		case <-time.After(2 * time.Second):
			t.Fatal("no probe sent")
		}
	}

	cancel()
	<-done

	assert.Zero(t, fired.Load())
	assert.Equal(t, TimerStopped, hb.State())
}

func TestHeartbeatStopBeforeFirstProbe(t *testing.T) {
	var fired atomic.Int32
	hb := NewHeartbeat(&fakePinger{}, time.Hour, time.Millisecond, func() { fired.Add(1) })

	done := make(chan struct{})
	go func() {
		hb.Run(context.Background())
		close(done)
	}()

	hb.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop")
	}

	require.Equal(t, TimerStopped, hb.State())
	assert.Zero(t, fired.Load())
}

func TestHeartbeatCancelledSessionDoesNotFire(t *testing.T) {
	var fired atomic.Int32
	p := &fakePinger{calls: make(chan struct{}, 1)}
	hb := NewHeartbeat(p, 5*time.Millisecond, time.Hour, func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	// Cancel while the probe is in flight.
	<-p.calls
	cancel()
	<-done

	assert.Zero(t, fired.Load())
	assert.Equal(t, TimerStopped, hb.State())
}
