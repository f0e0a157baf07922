package receiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
)

func TestProcessDecrypted_UnknownFlagsFails(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)
	dm := &model.DataMessage{Flags: model.FlagEndSession | model.FlagExpirationTimerUpdate}

	err := r.processDecrypted(context.Background(), model.NewAddress("+1alice", 1), dm)
	require.ErrorIs(t, err, receivererr.ErrUnknownFlags)
}

func TestProcessDecrypted_ExpirationTimerUpdateClearsBodyAndAttachments(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)
	dm := &model.DataMessage{
		Flags:       model.FlagExpirationTimerUpdate,
		Body:        ptr("will be cleared"),
		Attachments: []*model.AttachmentPointer{{ID: 1}},
		ExpireTimer: 3600,
	}

	err := r.processDecrypted(context.Background(), model.NewAddress("+1alice", 1), dm)
	require.NoError(t, err)
	require.Nil(t, dm.Body)
	require.Nil(t, dm.Attachments)
	require.Equal(t, uint32(3600), dm.ExpireTimer)
}

func TestProcessDecrypted_NoFlagsNoGroupNoAttachmentsSucceeds(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)
	dm := &model.DataMessage{Body: ptr("plain message")}

	err := r.processDecrypted(context.Background(), model.NewAddress("+1alice", 1), dm)
	require.NoError(t, err)
	require.Equal(t, "plain message", *dm.Body)
}

func TestProcessDecrypted_RunsGroupReconciliation(t *testing.T) {
	r, _, roster, _ := newTestReceiver(t)
	dm := &model.DataMessage{Group: &model.GroupContext{
		ID:      []byte("group-1"),
		Type:    model.GroupUpdate,
		Members: []string{"+1alice", "+1bob"},
	}}

	err := r.processDecrypted(context.Background(), model.NewAddress("+1alice", 1), dm)
	require.NoError(t, err)
	require.NotNil(t, roster.groups["group-1"])
}
