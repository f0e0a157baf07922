package receiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/events"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
)

func TestDispatchDataMessage_EmitsMessageEvent(t *testing.T) {
	r, bus, _, _ := newTestReceiver(t)

	var got events.MessagePayload
	bus.On(events.Message, func(p any) { got = p.(events.MessagePayload) })

	body := "hello"
	env := &model.Envelope{Source: "+15559998888", SourceDevice: 1, Timestamp: 42}
	dm := &model.DataMessage{Body: &body}

	err := r.dispatchDataMessage(context.Background(), env, dm)
	require.NoError(t, err)
	require.Equal(t, model.NewAddress("+15559998888", 1), got.Source)
	require.Equal(t, uint64(42), got.Timestamp)
	require.Equal(t, "hello", *got.Message.Body)
}

func TestDispatchDataMessage_EndSessionClearsFields(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)

	env := &model.Envelope{Source: "+15559998888", SourceDevice: 1}
	dm := &model.DataMessage{Flags: model.FlagEndSession}

	err := r.dispatchDataMessage(context.Background(), env, dm)
	require.NoError(t, err)
	require.Nil(t, dm.Body)
	require.Nil(t, dm.Attachments)
	require.Nil(t, dm.Group)
}

func TestDispatchSyncMessage_RejectsForeignSource(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)

	env := &model.Envelope{Source: "+19990000000", SourceDevice: 2}
	err := r.dispatchSyncMessage(context.Background(), env, &model.SyncMessage{Request: &model.SyncRequest{}})
	require.ErrorIs(t, err, receivererr.ErrInvalidSyncSource)
}

func TestDispatchSyncMessage_RejectsSelfDevice(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)

	env := &model.Envelope{Source: r.identity.Number, SourceDevice: r.identity.DeviceID}
	err := r.dispatchSyncMessage(context.Background(), env, &model.SyncMessage{Request: &model.SyncRequest{}})
	require.ErrorIs(t, err, receivererr.ErrSelfDeviceSync)
}

func TestDispatchSyncMessage_EmptyIsFault(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)

	env := &model.Envelope{Source: r.identity.Number, SourceDevice: r.identity.DeviceID + 1}
	err := r.dispatchSyncMessage(context.Background(), env, &model.SyncMessage{})
	require.ErrorIs(t, err, receivererr.ErrEmptySyncMessage)
}

func TestDispatchSyncMessage_BlockedReplacesSet(t *testing.T) {
	r, _, _, blocked := newTestReceiver(t)
	blocked.blocked["+1stale"] = true

	env := &model.Envelope{Source: r.identity.Number, SourceDevice: r.identity.DeviceID + 1}
	sm := &model.SyncMessage{Blocked: &model.SyncBlocked{Numbers: []string{"+1fresh"}}}

	require.NoError(t, r.dispatchSyncMessage(context.Background(), env, sm))
	require.False(t, blocked.blocked["+1stale"])
	require.True(t, blocked.blocked["+1fresh"])
}

func TestDispatchSyncMessage_ReadEmitsOneEventPerEntry(t *testing.T) {
	r, bus, _, _ := newTestReceiver(t)

	var got []events.ReadPayload
	bus.On(events.Read, func(p any) { got = append(got, p.(events.ReadPayload)) })

	env := &model.Envelope{Source: r.identity.Number, SourceDevice: r.identity.DeviceID + 1}
	sm := &model.SyncMessage{Read: []*model.SyncRead{
		{Sender: "+1a", Timestamp: 1},
		{Sender: "+1b", Timestamp: 2},
	}}

	require.NoError(t, r.dispatchSyncMessage(context.Background(), env, sm))
	require.Len(t, got, 2)
	require.Equal(t, "+1a", got[0].Sender)
	require.Equal(t, "+1b", got[1].Sender)
}

func TestUnpad_ValidPadding(t *testing.T) {
	padded := append([]byte("hello"), 0x80, 0x00, 0x00)
	plain, err := unpad(padded)
	require.NoError(t, err)
	require.Equal(t, "hello", string(plain))
}

func TestUnpad_MissingSentinelFails(t *testing.T) {
	_, err := unpad([]byte("no-sentinel-here"))
	require.ErrorIs(t, err, receivererr.ErrInvalidPadding)
}
