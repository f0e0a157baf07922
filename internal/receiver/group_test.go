package receiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/events"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
)

func TestReconcileGroupUpdate_NewGroupAddsEveryMember(t *testing.T) {
	r, bus, roster, _ := newTestReceiver(t)

	var got events.GroupPayload
	bus.On(events.Group, func(p any) { got = p.(events.GroupPayload) })

	source := model.NewAddress("+1alice", 1)
	name := "Friends"
	dm := &model.DataMessage{Group: &model.GroupContext{
		ID:      []byte("group-1"),
		Type:    model.GroupUpdate,
		Name:    &name,
		Members: []string{"+1alice", "+1bob"},
	}, Body: ptr("hi")}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"+1alice", "+1bob"}, got.Added)

	saved := roster.groups["group-1"]
	require.NotNil(t, saved)
	require.Equal(t, "Friends", saved.Name)
	require.ElementsMatch(t, []string{"+1alice", "+1bob"}, saved.Members)

	// The update sets a name and adds members, so the outbound message is
	// treated as meta-only (§4.7).
	require.Nil(t, dm.Body)
}

func TestReconcileGroupUpdate_OnlyReportsNewcomers(t *testing.T) {
	r, bus, roster, _ := newTestReceiver(t)
	roster.groups["group-1"] = &model.Group{ID: []byte("group-1"), Name: "Friends", Members: []string{"+1alice"}}

	var got events.GroupPayload
	bus.On(events.Group, func(p any) { got = p.(events.GroupPayload) })

	source := model.NewAddress("+1alice", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{
		ID:      []byte("group-1"),
		Type:    model.GroupUpdate,
		Members: []string{"+1alice", "+1carol"},
	}, Body: ptr("hi")}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.Equal(t, []string{"+1carol"}, got.Added)

	// §8 scenario 5: members were added, so the outbound body must be NULL.
	require.Nil(t, dm.Body)
}

func TestReconcileGroupUpdate_NoNameAvatarOrAddsRetainsBody(t *testing.T) {
	r, _, roster, _ := newTestReceiver(t)
	roster.groups["group-1"] = &model.Group{ID: []byte("group-1"), Name: "Friends", Members: []string{"+1alice", "+1bob"}}

	source := model.NewAddress("+1alice", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{
		ID:      []byte("group-1"),
		Type:    model.GroupUpdate,
		Members: []string{"+1alice", "+1bob"},
	}, Body: ptr("hi")}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.Equal(t, "hi", *dm.Body)
}

func TestReconcileGroupQuit_RemovesSourceFromMembership(t *testing.T) {
	r, _, roster, _ := newTestReceiver(t)
	roster.groups["group-1"] = &model.Group{ID: []byte("group-1"), Members: []string{"+1alice", "+1bob"}}

	source := model.NewAddress("+1bob", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{ID: []byte("group-1"), Type: model.GroupQuit}, Body: ptr("bye")}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.Nil(t, dm.Body)
	require.Equal(t, []string{"+1alice"}, roster.groups["group-1"].Members)
}

func TestReconcileGroupQuit_SelfLeaveDeletesGroup(t *testing.T) {
	r, _, roster, _ := newTestReceiver(t)
	roster.groups["group-1"] = &model.Group{ID: []byte("group-1"), Members: []string{r.identity.Number, "+1bob"}}

	source := model.NewAddress(r.identity.Number, r.identity.DeviceID)
	dm := &model.DataMessage{Group: &model.GroupContext{ID: []byte("group-1"), Type: model.GroupQuit}}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.Nil(t, roster.groups["group-1"])
}

func TestReconcileGroupQuit_UnknownGroupBootstraps(t *testing.T) {
	r, _, roster, _ := newTestReceiver(t)

	source := model.NewAddress("+1alice", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{ID: []byte("group-1"), Type: model.GroupQuit}, Body: ptr("bye")}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.Nil(t, dm.Body)

	// Bootstrapped with [source], then source immediately quit it, leaving
	// an empty membership saved under the new roster entry.
	saved := roster.groups["group-1"]
	require.NotNil(t, saved)
	require.Empty(t, saved.Members)
}

func TestReconcileGroupDeliver_UnknownGroupBootstraps(t *testing.T) {
	r, _, roster, _ := newTestReceiver(t)

	source := model.NewAddress("+1alice", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{ID: []byte("group-1"), Type: model.GroupDeliver}}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)

	saved := roster.groups["group-1"]
	require.NotNil(t, saved)
	require.Equal(t, []string{"+1alice"}, saved.Members)
}

func TestReconcileGroupDeliver_StripsMetadataFromGroupContext(t *testing.T) {
	r, bus, _, _ := newTestReceiver(t)

	var got events.GroupPayload
	bus.On(events.Group, func(p any) { got = p.(events.GroupPayload) })

	name := "Friends"
	source := model.NewAddress("+1alice", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{
		ID:      []byte("group-1"),
		Type:    model.GroupDeliver,
		Name:    &name,
		Members: []string{"+1alice", "+1bob"},
	}}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.Nil(t, got.Group.Name)
	require.Nil(t, got.Group.Members)
}

func TestReconcileGroupUpdate_NonMemberSourceStillApplies(t *testing.T) {
	r, _, roster, _ := newTestReceiver(t)
	roster.groups["group-1"] = &model.Group{ID: []byte("group-1"), Members: []string{"+1alice"}}

	// source is not (yet) a member of the existing roster entry; §4.7 says
	// to log this and continue, not reject the update.
	source := model.NewAddress("+1mallory", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{
		ID:      []byte("group-1"),
		Type:    model.GroupUpdate,
		Members: []string{"+1alice", "+1mallory"},
	}}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"+1alice", "+1mallory"}, roster.groups["group-1"].Members)
}

func TestReconcileGroup_UnknownTypeFails(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)

	source := model.NewAddress("+1alice", 1)
	dm := &model.DataMessage{Group: &model.GroupContext{ID: []byte("group-1"), Type: model.GroupType(99)}}

	err := r.reconcileGroup(context.Background(), source, dm)
	require.ErrorIs(t, err, receivererr.ErrUnknownGroupType)
}

func ptr(s string) *string { return &s }
