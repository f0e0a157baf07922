package receiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/events"
	"e2ereceiver/internal/keepalive"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/protocol/doubleratchet"
	"e2ereceiver/internal/relayclient"
	"e2ereceiver/internal/session"
)

type fakeSessionStore struct {
	sessions map[model.Address]*doubleratchet.RatchetState
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[model.Address]*doubleratchet.RatchetState)}
}

func (s *fakeSessionStore) SaveSession(ctx context.Context, addr model.Address, st *doubleratchet.RatchetState) error {
	s.sessions[addr] = st
	return nil
}

func (s *fakeSessionStore) LoadSession(ctx context.Context, addr model.Address) (*doubleratchet.RatchetState, error) {
	return s.sessions[addr], nil
}

func (s *fakeSessionStore) DeleteSession(ctx context.Context, addr model.Address) error {
	delete(s.sessions, addr)
	return nil
}

func (s *fakeSessionStore) ListDeviceIDs(ctx context.Context, number string) ([]uint32, error) {
	var ids []uint32
	for addr := range s.sessions {
		if addr.Number == number {
			ids = append(ids, addr.DeviceID)
		}
	}
	return ids, nil
}

type fakeIdentityStore struct {
	trusted map[model.Address][]byte
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{trusted: make(map[model.Address][]byte)}
}

func (s *fakeIdentityStore) TrustedIdentityKey(ctx context.Context, addr model.Address) ([]byte, error) {
	return s.trusted[addr], nil
}

func (s *fakeIdentityStore) TrustIdentityKey(ctx context.Context, addr model.Address, key []byte) error {
	s.trusted[addr] = key
	return nil
}

type fakeRosterStore struct {
	groups map[string]*model.Group
}

func newFakeRosterStore() *fakeRosterStore {
	return &fakeRosterStore{groups: make(map[string]*model.Group)}
}

func (s *fakeRosterStore) GetGroup(ctx context.Context, groupID []byte) (*model.Group, error) {
	return s.groups[string(groupID)], nil
}

func (s *fakeRosterStore) SaveGroup(ctx context.Context, group *model.Group) error {
	s.groups[string(group.ID)] = group
	return nil
}

func (s *fakeRosterStore) DeleteGroup(ctx context.Context, groupID []byte) error {
	delete(s.groups, string(groupID))
	return nil
}

type fakeBlockedStore struct {
	blocked map[string]bool
}

func newFakeBlockedStore() *fakeBlockedStore {
	return &fakeBlockedStore{blocked: make(map[string]bool)}
}

func (s *fakeBlockedStore) IsBlocked(ctx context.Context, number string) (bool, error) {
	return s.blocked[number], nil
}

func (s *fakeBlockedStore) Block(ctx context.Context, number string) error {
	s.blocked[number] = true
	return nil
}

func (s *fakeBlockedStore) Unblock(ctx context.Context, number string) error {
	delete(s.blocked, number)
	return nil
}

func (s *fakeBlockedStore) ReplaceAll(ctx context.Context, numbers []string) error {
	s.blocked = make(map[string]bool, len(numbers))
	for _, n := range numbers {
		s.blocked[n] = true
	}
	return nil
}

// newTestReceiver builds a Receiver wired to in-memory fakes, suitable for
// exercising the CD/GR/processDecrypted pipeline without a live transport.
func newTestReceiver(t *testing.T) (r *Receiver, bus *events.Bus, roster *fakeRosterStore, blocked *fakeBlockedStore) {
	t.Helper()
	roster = newFakeRosterStore()
	blocked = newFakeBlockedStore()
	sessions := session.NewManager(newFakeSessionStore(), newFakeIdentityStore(), [32]byte{1}, [32]byte{2}, [32]byte{3}, [32]byte{4})
	bus = events.NewBus()
	relay := relayclient.New("http://unused.invalid", "", "")

	identity := Identity{Number: "+15550001111", DeviceID: 1}
	r = New(identity, "ws://unused.invalid", keepalive.DefaultConfig(), bus, sessions, roster, blocked, relay, func(b []byte) ([]byte, error) { return b, nil })
	return r, bus, roster, blocked
}

func TestHandleEnvelope_DropsBlockedSource(t *testing.T) {
	r, bus, _, blocked := newTestReceiver(t)
	blocked.blocked["+15559998888"] = true

	var errEvents int
	bus.On(events.Error, func(any) { errEvents++ })
	var receiptEvents int
	bus.On(events.Receipt, func(any) { receiptEvents++ })

	env := &model.Envelope{Type: model.EnvelopeReceipt, Source: "+15559998888", SourceDevice: 1}
	r.handleEnvelope(context.Background(), env)

	require.Equal(t, 0, errEvents)
	require.Equal(t, 0, receiptEvents)
}

func TestHandleEnvelope_ReceiptFromUnblockedSourceEmits(t *testing.T) {
	r, bus, _, _ := newTestReceiver(t)

	var got *model.Envelope
	bus.On(events.Receipt, func(p any) {
		got = p.(events.ReceiptPayload).Envelope
	})

	env := &model.Envelope{Type: model.EnvelopeReceipt, Source: "+15559998888", SourceDevice: 1}
	r.handleEnvelope(context.Background(), env)

	require.NotNil(t, got)
	require.Equal(t, "+15559998888", got.Source)
}
