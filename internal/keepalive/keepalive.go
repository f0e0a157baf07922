// Package keepalive implements the Keep-Alive (KA) state machine (§4.2):
// a timer-driven liveness probe attached to a Frame Transport, which force
// closes the transport if a ping goes unacknowledged.
package keepalive

import (
	"context"
	"sync"
	"time"

	"e2ereceiver/internal/log"
	"e2ereceiver/internal/transport"
	"go.uber.org/zap"
)

// State names the KA state machine's three states, named literally as in
// §4.2 rather than renamed into something more "idiomatic" — the whole
// point of this package is to be a direct transcription of that state
// machine.
type State int

const (
	Idle State = iota
	Armed
	AwaitingAck
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case AwaitingAck:
		return "awaiting_ack"
	default:
		return "unknown"
	}
}

// Config tunes KA. Path defaults to "/v1/keepalive", matching the relay's
// side-channel route (§6); Disconnect suppresses the ack timer and the
// forced close when false, while still issuing pings.
type Config struct {
	Path         string
	Disconnect   bool
	PingInterval time.Duration
	AckTimeout   time.Duration
}

// DefaultConfig matches §4.2's stated defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "/v1/keepalive",
		Disconnect:   true,
		PingInterval: 50 * time.Second,
		AckTimeout:   time.Second,
	}
}

// Keepalive holds the ping/ack timer pair and current state for one
// attached transport.
type Keepalive struct {
	cfg Config

	mu        sync.Mutex
	state     State
	pingTimer *time.Timer
	ackTimer  *time.Timer
	tr        *transport.Transport
}

// New constructs an unattached Keepalive.
func New(cfg Config) *Keepalive {
	return &Keepalive{cfg: cfg, state: Idle}
}

// Attach wires the keepalive to t: Reset on open, on every inbound frame,
// and Stop on close, per §4.2's contract.
func (k *Keepalive) Attach(t *transport.Transport) {
	k.mu.Lock()
	k.tr = t
	k.mu.Unlock()

	t.OnActivity(k.Reset)
	t.OnClose(func(int, string) { k.Stop() })
	k.Reset()
}

// Reset arms (or re-arms) the ping timer, cancelling an ack timer if one
// was pending. Called on open and on every inbound frame.
func (k *Keepalive) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.ackTimer != nil {
		k.ackTimer.Stop()
		k.ackTimer = nil
	}
	if k.pingTimer != nil {
		k.pingTimer.Stop()
	}
	k.state = Armed
	k.pingTimer = time.AfterFunc(k.cfg.PingInterval, k.firePing)
}

// Stop cancels all timers and returns to Idle. Called on transport close.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.pingTimer != nil {
		k.pingTimer.Stop()
		k.pingTimer = nil
	}
	if k.ackTimer != nil {
		k.ackTimer.Stop()
		k.ackTimer = nil
	}
	k.state = Idle
}

// State reports the current KA state, for tests and diagnostics.
func (k *Keepalive) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

func (k *Keepalive) firePing() {
	k.mu.Lock()
	tr := k.tr
	disconnect := k.cfg.Disconnect
	k.state = AwaitingAck
	if disconnect {
		k.ackTimer = time.AfterFunc(k.cfg.AckTimeout, k.fireAckTimeout)
	}
	k.mu.Unlock()

	if tr == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), k.cfg.AckTimeout+5*time.Second)
		defer cancel()
		resp, err := tr.SendRequest(ctx, "GET", k.cfg.Path, nil)
		if err != nil {
			log.Warn("keepalive: ping request failed", zap.Error(err))
			return
		}
		if resp.Status >= 200 && resp.Status < 300 {
			k.onAck()
		}
	}()
}

func (k *Keepalive) onAck() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state != AwaitingAck {
		return
	}
	if k.ackTimer != nil {
		k.ackTimer.Stop()
		k.ackTimer = nil
	}
	k.state = Armed
	if k.pingTimer != nil {
		k.pingTimer.Stop()
	}
	k.pingTimer = time.AfterFunc(k.cfg.PingInterval, k.firePing)
}

func (k *Keepalive) fireAckTimeout() {
	k.mu.Lock()
	if k.state != AwaitingAck {
		k.mu.Unlock()
		return
	}
	tr := k.tr
	k.mu.Unlock()

	log.Warn("keepalive: no response to keepalive request, closing")
	if tr != nil {
		tr.Close(3001, "No response to keepalive request")
	}
}
