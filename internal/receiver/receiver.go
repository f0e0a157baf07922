// Package receiver implements the Receiver Core (RC, §4.3) and wires it to
// the Envelope Queue (EQ, §4.4), Decryptor (DEC, §4.5), Content Dispatcher
// (CD, §4.6), and Group Reconciler (GR, §4.7/§4.8) — a direct, unrenamed
// port of the spec's module boundaries, generalized from the teacher's
// single hardcoded two-party App.ReceiveMessage into a multi-address
// pipeline.
package receiver

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"e2ereceiver/internal/events"
	"e2ereceiver/internal/keepalive"
	"e2ereceiver/internal/log"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
	"e2ereceiver/internal/relayclient"
	"e2ereceiver/internal/session"
	"e2ereceiver/internal/store"
	"e2ereceiver/internal/transport"
	"e2ereceiver/internal/wire"

	"go.uber.org/zap"
)

// Identity is this device's own address and symmetric signaling key.
type Identity struct {
	Number       string
	DeviceID     uint32
	SignalingKey []byte
}

// Receiver owns one FT+KA pair plus identity, the session-cipher manager,
// the roster/blocked stores, the relay HTTP side-channel, and the event
// bus the consumer subscribes to (§4.3).
type Receiver struct {
	identity    Identity
	relayURL    string
	kaConfig    keepalive.Config
	bus         *events.Bus
	sessions    *session.Manager
	roster      store.RosterStore
	blocked     store.BlockedStore
	relay       *relayclient.Client
	decryptBody func([]byte) ([]byte, error)

	mu           sync.Mutex
	tr           *transport.Transport
	ka           *keepalive.Keepalive
	eq           *queue
	closeRequest bool
	reconnecting bool

	// pendingReplay remembers the original envelope for an address whose
	// PREKEY_BUNDLE decrypt raised IncomingIdentityKeyError, so
	// TryMessageAgain knows whether to parse the replayed plaintext as a
	// Content or as a legacy DataMessage (§4.5 "content" vs "legacyBody").
	replayMu      sync.Mutex
	pendingReplay map[model.Address]*model.Envelope
}

// New constructs a Receiver. decryptBody performs the signaling-key
// decrypt (§4.4 step 1) — a symmetric integrity+confidentiality step kept
// out of this package's concern since §1 treats signaling-key mechanics as
// an adjunct to, not part of, the ratchet black box.
func New(identity Identity, relayURL string, kaConfig keepalive.Config, bus *events.Bus, sessions *session.Manager, roster store.RosterStore, blocked store.BlockedStore, relay *relayclient.Client, decryptBody func([]byte) ([]byte, error)) *Receiver {
	return &Receiver{
		identity:      identity,
		relayURL:      relayURL,
		kaConfig:      kaConfig,
		bus:           bus,
		sessions:      sessions,
		roster:        roster,
		blocked:       blocked,
		relay:         relay,
		decryptBody:   decryptBody,
		pendingReplay: make(map[model.Address]*model.Envelope),
	}
}

// Connect opens a fresh transport, per §4.3 step 1: "close any existing
// socket; open a new one configured with handler = EQ's enqueue function".
func (r *Receiver) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.tr != nil {
		r.tr.Close(3000, "reconnecting")
	}
	r.mu.Unlock()

	tr, err := transport.Open(ctx, r.relayURL)
	if err != nil {
		return errors.Wrap(err, "receiver: connect")
	}

	ka := keepalive.New(r.kaConfig)
	eq := newQueue()

	tr.OnRequest(r.enqueueInbound(eq))
	tr.OnClose(r.handleClose)
	ka.Attach(tr)

	r.mu.Lock()
	r.tr = tr
	r.ka = ka
	r.eq = eq
	r.closeRequest = false
	r.mu.Unlock()

	return nil
}

// Close tears the connection down with the caller-initiated close code, per
// §4.3 step 3.
func (r *Receiver) Close() {
	r.mu.Lock()
	r.closeRequest = true
	tr := r.tr
	eq := r.eq
	r.mu.Unlock()

	if tr != nil {
		tr.Close(3000, "called close")
	}
	if eq != nil {
		eq.Stop()
	}
}

// Status reports the underlying transport's state, or -1 if there is none
// (§4.3 "Status").
func (r *Receiver) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tr == nil {
		return -1
	}
	return r.tr.Status()
}

// handleClose implements §4.3 step 2: a code-3000 close (caller initiated)
// terminates quietly; any other close probes reachability and reconnects
// exactly once.
func (r *Receiver) handleClose(code int, reason string) {
	r.mu.Lock()
	if r.closeRequest || code == 3000 {
		r.mu.Unlock()
		return
	}
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	ctx := context.Background()
	reachable, err := r.relay.ProbeDevice(ctx, r.identity.Number)
	if err != nil {
		r.emitError(errors.Wrap(err, "receiver: reachability probe failed"))
		return
	}
	if !reachable {
		r.emitError(errors.New("receiver: device unreachable after disconnect"))
		return
	}

	if err := r.Connect(ctx); err != nil {
		r.emitError(errors.Wrap(err, "receiver: reconnect failed"))
	}
}

// enqueueInbound is the handler FT calls for every inbound REQUEST. It
// implements the Envelope Queue's protocol for a PUT /messages request
// (§4.4): decrypt the signaling-key layer off-queue so per-message latency
// never blocks responding to the relay, but reserve this envelope's slot on
// the queue synchronously, in arrival order, before the decrypt goroutine
// is even spawned — otherwise a faster decrypt for envelope N+1 could land
// on the queue before envelope N's, violating §4.4/§5/§8's strict
// per-envelope ordering invariant. The reserved task blocks on its own
// decrypt result, so the queue still only ever runs one envelope's pipeline
// at a time, in the order FT delivered them.
func (r *Receiver) enqueueInbound(eq *queue) transport.RequestHandler {
	return func(req *model.Request, respond func(status uint16, message string)) {
		if req.Verb != "PUT" || req.Path != "/messages" {
			respond(404, "Not found")
			return
		}

		ready := make(chan *model.Envelope, 1)
		eq.Enqueue(func() {
			if env := <-ready; env != nil {
				r.handleEnvelope(context.Background(), env)
			}
		})

		go func() {
			plaintext, err := r.decryptBody(req.Body)
			if err != nil {
				respond(500, "Bad encrypted websocket message")
				r.emitError(errors.Wrap(err, "receiver: signaling-key decrypt"))
				ready <- nil
				return
			}

			env, err := wire.DecodeEnvelope(plaintext)
			if err != nil {
				respond(500, "Bad encrypted websocket message")
				r.emitError(errors.Wrap(err, "receiver: envelope decode"))
				ready <- nil
				return
			}

			respond(200, "OK")
			ready <- env
		}()
	}
}

// handleEnvelope runs the DEC/CD/GR pipeline for one envelope, strictly
// serialized by the caller's queue.
func (r *Receiver) handleEnvelope(ctx context.Context, env *model.Envelope) {
	blocked, err := r.blocked.IsBlocked(ctx, env.Source)
	if err != nil {
		r.emitError(errors.Wrap(err, "receiver: blocked-set lookup"))
		return
	}
	if blocked {
		log.Debug("receiver: dropping envelope from blocked source", zap.String("source", env.Source))
		return
	}

	if err := r.decryptAndDispatch(ctx, env); err != nil {
		var idErr *receivererr.IncomingIdentityKeyError
		if errors.As(err, &idErr) {
			r.replayMu.Lock()
			r.pendingReplay[idErr.Address] = env
			r.replayMu.Unlock()
		} else {
			log.Warn("receiver: envelope processing failed", zap.Error(err))
		}
		r.emitError(err)
	}
}

// TryMessageAgain replays a PREKEY_BUNDLE decrypt that previously failed
// with IncomingIdentityKeyError, once the consumer has updated the identity
// store (§4.5, §8 scenario 4).
func (r *Receiver) TryMessageAgain(ctx context.Context, addr model.Address) {
	r.replayMu.Lock()
	env, ok := r.pendingReplay[addr]
	if ok {
		delete(r.pendingReplay, addr)
	}
	r.replayMu.Unlock()
	if !ok {
		r.emitError(errors.New("receiver: no pending replay for address"))
		return
	}

	plaintext, err := r.sessions.TryMessageAgain(ctx, addr)
	if err != nil {
		r.emitError(errors.Wrap(err, "receiver: try message again"))
		return
	}
	if err := r.dispatchPlaintext(ctx, env, plaintext); err != nil {
		r.emitError(err)
	}
}

func (r *Receiver) emitError(err error) {
	r.bus.Emit(events.Error, events.ErrorPayload{Cause: err})
}
