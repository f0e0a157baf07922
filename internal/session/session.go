// Package session wraps internal/protocol/doubleratchet and
// internal/protocol/x3dh behind the decryptWhisperMessage /
// decryptPreKeyWhisperMessage / closeSession contract of §4.5/§4.7, adding
// trust-on-first-use identity pinning and the IncomingIdentityKeyError
// replay facility.
package session

import (
	"context"
	"sync"

	"e2ereceiver/internal/cryptographic/dh"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/protocol/doubleratchet"
	"e2ereceiver/internal/protocol/x3dh"
	"e2ereceiver/internal/receivererr"
	"e2ereceiver/internal/store"

	"github.com/pkg/errors"
)

// Manager owns one ratchet session per Address plus the identity-key trust
// store, and the replay table backing TryMessageAgain.
type Manager struct {
	sessions store.SessionStore
	identity store.IdentityStore

	// our long-term and signed-prekey keypairs, used on the receiving end
	// of X3DH when a PREKEY_BUNDLE arrives (§4.5).
	ikPriv, ikPub   [32]byte
	spkPriv, spkPub [32]byte

	mu     sync.Mutex
	replay map[model.Address]replayEntry
}

type replayEntry struct {
	ciphertext   []byte
	ephemeralPub []byte
	header       model.Header
	identityKey  []byte
}

// NewManager constructs a Manager bound to the receiver's own long-term
// identity key and signed prekey (both generated once at provisioning time
// and persisted out of band, per §1's "persistent storage ... out of
// scope").
func NewManager(sessions store.SessionStore, identity store.IdentityStore, ikPriv, ikPub, spkPriv, spkPub [32]byte) *Manager {
	return &Manager{
		sessions: sessions,
		identity: identity,
		ikPriv:   ikPriv,
		ikPub:    ikPub,
		spkPriv:  spkPriv,
		spkPub:   spkPub,
		replay:   make(map[model.Address]replayEntry),
	}
}

// DecryptWhisperMessage decrypts a CIPHERTEXT envelope body against the
// existing ratchet session for addr (§4.5). There must already be a
// session; PREKEY_BUNDLE is the only envelope type that establishes one.
func (m *Manager) DecryptWhisperMessage(ctx context.Context, addr model.Address, header model.Header, ciphertext []byte) ([]byte, error) {
	st, err := m.sessions.LoadSession(ctx, addr)
	if err != nil {
		return nil, errors.Wrap(err, "session: load")
	}
	if st == nil {
		return nil, receivererr.ErrNoSession
	}

	plain, err := st.Receive(header, ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "session: ratchet receive")
	}
	if err := m.sessions.SaveSession(ctx, addr, st); err != nil {
		return nil, errors.Wrap(err, "session: save")
	}
	return plain, nil
}

// DecryptPreKeyWhisperMessage establishes (or re-establishes) a session for
// addr from a PREKEY_BUNDLE envelope's embedded X3DH handshake, then
// decrypts the attached ratchet message. If the sender's identity key does
// not match the key previously trusted for addr, it returns
// *receivererr.IncomingIdentityKeyError instead of performing the X3DH
// computation, and records the inputs for a later TryMessageAgain.
func (m *Manager) DecryptPreKeyWhisperMessage(ctx context.Context, addr model.Address, bundle model.SharedKey, ekPub [32]byte, header model.Header, ciphertext []byte) ([]byte, error) {
	trusted, err := m.identity.TrustedIdentityKey(ctx, addr)
	if err != nil {
		return nil, errors.Wrap(err, "session: load trusted identity key")
	}
	if trusted != nil && string(trusted) != string(bundle.IKPub) {
		m.mu.Lock()
		m.replay[addr] = replayEntry{
			ciphertext:   ciphertext,
			ephemeralPub: ekPub[:],
			header:       header,
			identityKey:  bundle.IKPub,
		}
		m.mu.Unlock()
		return nil, &receivererr.IncomingIdentityKeyError{
			Address:      addr,
			Ciphertext:   ciphertext,
			IdentityKey:  bundle.IKPub,
			EphemeralPub: ekPub[:],
		}
	}

	if trusted == nil {
		if err := m.identity.TrustIdentityKey(ctx, addr, bundle.IKPub); err != nil {
			return nil, errors.Wrap(err, "session: trust identity key")
		}
	}

	st, err := m.establishFromBundle(bundle, ekPub)
	if err != nil {
		return nil, errors.Wrap(err, "session: x3dh")
	}

	plain, err := st.Receive(header, ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "session: ratchet receive")
	}
	if err := m.sessions.SaveSession(ctx, addr, st); err != nil {
		return nil, errors.Wrap(err, "session: save")
	}

	m.mu.Lock()
	delete(m.replay, addr)
	m.mu.Unlock()

	return plain, nil
}

// TryMessageAgain replays a previously failed PREKEY_BUNDLE decrypt for
// addr, assuming the consumer has since called identity.TrustIdentityKey
// (or otherwise updated the trust store) to accept the new key (§4.5,
// §8-scenario-4). It replays exactly the inputs recorded at failure time —
// the caller does not need to have kept them.
func (m *Manager) TryMessageAgain(ctx context.Context, addr model.Address) ([]byte, error) {
	m.mu.Lock()
	entry, ok := m.replay[addr]
	m.mu.Unlock()
	if !ok {
		return nil, errors.New("session: no pending replay for address")
	}

	var ekPub [32]byte
	copy(ekPub[:], entry.ephemeralPub)
	bundle := model.SharedKey{IKPub: entry.identityKey}
	return m.DecryptPreKeyWhisperMessage(ctx, addr, bundle, ekPub, entry.header, entry.ciphertext)
}

func (m *Manager) establishFromBundle(bundle model.SharedKey, ekPub [32]byte) (*doubleratchet.RatchetState, error) {
	if len(bundle.IKPub) != 32 {
		return nil, errors.Errorf("identity key is %d bytes, want 32", len(bundle.IKPub))
	}
	receiver := &x3dh.X3DHReceiver{X3DHBase: &x3dh.X3DHBase{}}
	sk, err := receiver.GenerateShareKey(&model.ReceiverKeyBundle{
		IKPubA:   bundle.IKPub,
		EKPubA:   ekPub[:],
		IKPrivB:  m.ikPriv[:],
		SPKPrivB: m.spkPriv[:],
	})
	if err != nil {
		return nil, err
	}

	var theirPub [32]byte
	copy(theirPub[:], ekPub[:])
	return doubleratchet.NewState(sk, m.spkPriv, m.spkPub, theirPub), nil
}

// CloseSession tears down the session for addr, idempotently (§4.7
// End-Session: "Operation must be idempotent").
func (m *Manager) CloseSession(ctx context.Context, addr model.Address) error {
	if err := m.sessions.DeleteSession(ctx, addr); err != nil {
		return errors.Wrap(err, "session: close")
	}
	m.mu.Lock()
	delete(m.replay, addr)
	m.mu.Unlock()
	return nil
}

// EndSession enumerates every device id stored for number and closes each
// of their sessions (§4.7).
func (m *Manager) EndSession(ctx context.Context, number string) error {
	deviceIDs, err := m.sessions.ListDeviceIDs(ctx, number)
	if err != nil {
		return errors.Wrap(err, "session: list device ids")
	}
	for _, id := range deviceIDs {
		if err := m.CloseSession(ctx, model.NewAddress(number, id)); err != nil {
			return err
		}
	}
	return nil
}

// NewIdentityKeyPair generates a fresh X25519 long-term identity keypair,
// used by provisioning tooling outside the receive pipeline proper.
func NewIdentityKeyPair() (priv, pub [32]byte, err error) {
	return dh.NewX25519KeyPair()
}
