package receiver

import (
	"context"

	"github.com/pkg/errors"

	"e2ereceiver/internal/events"
	"e2ereceiver/internal/log"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"

	"go.uber.org/zap"
)

// reconcileGroup is the Group Reconciler (GR, §4.7): apply one DataMessage's
// GroupContext to the persisted roster and emit the resulting "group" event.
// It may mutate dm in place (QUIT clears the message body, DELIVER strips
// the metadata fields it doesn't carry).
func (r *Receiver) reconcileGroup(ctx context.Context, source model.Address, dm *model.DataMessage) error {
	group := dm.Group

	switch group.Type {
	case model.GroupUpdate:
		return r.reconcileGroupUpdate(ctx, source, dm)
	case model.GroupQuit:
		return r.reconcileGroupQuit(ctx, source, dm)
	case model.GroupDeliver:
		return r.reconcileGroupDeliver(ctx, source, dm)
	default:
		return receivererr.ErrUnknownGroupType
	}
}

// loadOrBootstrapGroup implements §4.7's first branch for QUIT/DELIVER: "if
// no local group for id ... else create with [source] only and log 'Got
// message for unknown group'". UPDATE bootstraps itself with the full
// incoming member set inside reconcileGroupUpdate instead of going through
// here.
func (r *Receiver) loadOrBootstrapGroup(ctx context.Context, source model.Address, id []byte) (*model.Group, error) {
	existing, err := r.roster.GetGroup(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "receiver: load group")
	}
	if existing != nil {
		return existing, nil
	}

	log.Info("receiver: got message for unknown group", zap.String("source", source.Number))
	created := &model.Group{ID: id, Members: []string{source.Number}}
	if err := r.roster.SaveGroup(ctx, created); err != nil {
		return nil, errors.Wrap(err, "receiver: save group")
	}
	return created, nil
}

// checkGroupMembership implements §4.7's "verify source is a member; if
// not, log but continue" — flagged by the spec as a possible race, so this
// never fails the reconciliation, only logs.
func (r *Receiver) checkGroupMembership(source model.Address, group *model.Group) {
	for _, m := range group.Members {
		if m == source.Number {
			return
		}
	}
	log.Warn("receiver: group message from non-member",
		zap.String("source", source.Number), zap.ByteString("group", group.ID))
}

// reconcileGroupUpdate merges the incoming membership/metadata into the
// roster, computing which members are new relative to what was stored
// before this update (§8 scenario 5).
func (r *Receiver) reconcileGroupUpdate(ctx context.Context, source model.Address, dm *model.DataMessage) error {
	group := dm.Group

	existing, err := r.roster.GetGroup(ctx, group.ID)
	if err != nil {
		return errors.Wrap(err, "receiver: load group")
	}

	var added []string
	if existing == nil {
		added = append([]string(nil), group.Members...)
	} else {
		r.checkGroupMembership(source, existing)

		present := make(map[string]struct{}, len(existing.Members))
		for _, m := range existing.Members {
			present[m] = struct{}{}
		}
		for _, m := range group.Members {
			if _, ok := present[m]; !ok {
				added = append(added, m)
			}
		}
	}

	merged := &model.Group{ID: group.ID, Members: group.Members}
	if group.Name != nil {
		merged.Name = *group.Name
	} else if existing != nil {
		merged.Name = existing.Name
	}
	if group.Avatar != nil {
		merged.Avatar = group.Avatar
	} else if existing != nil {
		merged.Avatar = existing.Avatar
	}
	if len(merged.Members) == 0 && existing != nil {
		merged.Members = existing.Members
	}

	if err := r.roster.SaveGroup(ctx, merged); err != nil {
		return errors.Wrap(err, "receiver: save group")
	}

	// Retain body+attachments only when the update adds no members and
	// carries no name or avatar; any added member or name/avatar change
	// makes the message meta-only (§4.7).
	if !(group.Avatar == nil && len(added) == 0 && group.Name == nil) {
		dm.Body = nil
		dm.Attachments = nil
	}

	r.bus.Emit(events.Group, events.GroupPayload{Source: source, Group: group, Added: added, Message: dm})
	return nil
}

// reconcileGroupQuit drops the source from the roster, or deletes the group
// outright when the source is ourself leaving it; either way the outbound
// DataMessage carries no body or attachments (§4.7).
func (r *Receiver) reconcileGroupQuit(ctx context.Context, source model.Address, dm *model.DataMessage) error {
	group := dm.Group
	dm.Body = nil
	dm.Attachments = nil

	existing, err := r.loadOrBootstrapGroup(ctx, source, group.ID)
	if err != nil {
		return err
	}
	r.checkGroupMembership(source, existing)

	if source.Number == r.identity.Number {
		if err := r.roster.DeleteGroup(ctx, group.ID); err != nil {
			return errors.Wrap(err, "receiver: delete group")
		}
		r.bus.Emit(events.Group, events.GroupPayload{Source: source, Group: group, Message: dm})
		return nil
	}

	members := make([]string, 0, len(existing.Members))
	for _, m := range existing.Members {
		if m != source.Number {
			members = append(members, m)
		}
	}
	existing.Members = members
	if err := r.roster.SaveGroup(ctx, existing); err != nil {
		return errors.Wrap(err, "receiver: save group")
	}

	r.bus.Emit(events.Group, events.GroupPayload{Source: source, Group: group, Message: dm})
	return nil
}

// reconcileGroupDeliver tags a plain message as belonging to the group
// without carrying any membership/metadata change (§4.7): the GroupContext
// is reduced to its ID before the "group" event is emitted.
func (r *Receiver) reconcileGroupDeliver(ctx context.Context, source model.Address, dm *model.DataMessage) error {
	group := dm.Group

	existing, err := r.loadOrBootstrapGroup(ctx, source, group.ID)
	if err != nil {
		return err
	}
	r.checkGroupMembership(source, existing)

	group.Name = nil
	group.Avatar = nil
	group.Members = nil

	r.bus.Emit(events.Group, events.GroupPayload{Source: source, Group: group, Message: dm})
	return nil
}
