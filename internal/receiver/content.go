package receiver

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"e2ereceiver/internal/attachment"
	"e2ereceiver/internal/events"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
	"e2ereceiver/internal/wire"
)

// dispatchPlaintext is the Content Dispatcher (CD, §4.6) entry point: parse
// the decrypted bytes as a Content (if the envelope carried `content`) or
// as a legacy DataMessage, then run the matching path.
func (r *Receiver) dispatchPlaintext(ctx context.Context, env *model.Envelope, plaintext []byte) error {
	if !env.HasContent() {
		dm, err := wire.DecodeDataMessage(plaintext)
		if err != nil {
			return errors.Wrap(err, "receiver: decode legacy data message")
		}
		return r.dispatchDataMessage(ctx, env, dm)
	}

	content, err := wire.DecodeContent(plaintext)
	if err != nil {
		return errors.Wrap(err, "receiver: decode content")
	}

	switch {
	case content.DataMessage != nil && content.SyncMessage == nil:
		return r.dispatchDataMessage(ctx, env, content.DataMessage)
	case content.SyncMessage != nil && content.DataMessage == nil:
		return r.dispatchSyncMessage(ctx, env, content.SyncMessage)
	default:
		return receivererr.ErrEmptyContent
	}
}

// dispatchDataMessage is §4.6's DataMessage path.
func (r *Receiver) dispatchDataMessage(ctx context.Context, env *model.Envelope, dm *model.DataMessage) error {
	addr := env.Address()

	if dm.Flags&model.FlagEndSession != 0 {
		if err := r.sessions.EndSession(ctx, env.Source); err != nil {
			return errors.Wrap(err, "receiver: end session")
		}
	}

	if err := r.processDecrypted(ctx, addr, dm); err != nil {
		return err
	}

	r.bus.Emit(events.Message, events.MessagePayload{
		Source:    addr,
		Timestamp: env.Timestamp,
		Message:   dm,
	})
	return nil
}

// dispatchSyncMessage is §4.6's SyncMessage path: only accepted from our
// own number's other devices.
func (r *Receiver) dispatchSyncMessage(ctx context.Context, env *model.Envelope, sm *model.SyncMessage) error {
	if env.Source != r.identity.Number {
		return receivererr.ErrInvalidSyncSource
	}
	if env.SourceDevice == r.identity.DeviceID {
		return receivererr.ErrSelfDeviceSync
	}

	switch {
	case sm.Sent != nil:
		return r.dispatchSyncSent(ctx, sm.Sent)
	case sm.Contacts != nil:
		return r.dispatchSyncContacts(ctx, sm.Contacts)
	case sm.Groups != nil:
		return r.dispatchSyncGroups(ctx, sm.Groups)
	case sm.Blocked != nil:
		return r.blocked.ReplaceAll(ctx, sm.Blocked.Numbers)
	case sm.Request != nil:
		return nil // log only, per §4.6
	case len(sm.Read) > 0:
		for _, read := range sm.Read {
			r.bus.Emit(events.Read, events.ReadPayload{Sender: read.Sender, Timestamp: read.Timestamp})
		}
		return nil
	default:
		return receivererr.ErrEmptySyncMessage
	}
}

// dispatchSyncContacts fetches and decrypts the contacts export blob, then
// streams it record by record, emitting one "contact" event each and a
// terminal "contactsync" once the stream is exhausted (§4.6).
func (r *Receiver) dispatchSyncContacts(ctx context.Context, blob *model.SyncAttachmentBlob) error {
	if blob.Attachment == nil {
		return errors.New("receiver: contacts sync with no attachment")
	}
	if err := attachment.FetchAndDecrypt(ctx, r.relay, blob.Attachment); err != nil {
		return errors.Wrap(err, "receiver: fetch contacts blob")
	}

	reader := bytes.NewReader(blob.Attachment.Data)
	count := 0
	for {
		body, err := wire.ReadLengthDelimitedBytes(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "receiver: read contact record")
		}
		rec, err := wire.DecodeContactRecord(body)
		if err != nil {
			return errors.Wrap(err, "receiver: decode contact record")
		}
		r.bus.Emit(events.Contact, events.ContactPayload{Contact: rec})
		count++
	}

	r.bus.Emit(events.ContactSync, events.ContactSyncPayload{Count: count})
	return nil
}

// dispatchSyncGroups is dispatchSyncContacts's counterpart for the groups
// export blob (§4.6).
func (r *Receiver) dispatchSyncGroups(ctx context.Context, blob *model.SyncAttachmentBlob) error {
	if blob.Attachment == nil {
		return errors.New("receiver: groups sync with no attachment")
	}
	if err := attachment.FetchAndDecrypt(ctx, r.relay, blob.Attachment); err != nil {
		return errors.Wrap(err, "receiver: fetch groups blob")
	}

	reader := bytes.NewReader(blob.Attachment.Data)
	count := 0
	for {
		body, err := wire.ReadLengthDelimitedBytes(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "receiver: read group record")
		}
		rec, err := wire.DecodeGroupRecord(body)
		if err != nil {
			return errors.Wrap(err, "receiver: decode group record")
		}
		if rec.Active {
			if err := r.roster.SaveGroup(ctx, &model.Group{ID: rec.ID, Name: rec.Name, Members: rec.Members}); err != nil {
				return errors.Wrap(err, "receiver: save synced group")
			}
		}
		r.bus.Emit(events.Group, events.GroupRecordPayload{Record: rec})
		count++
	}

	r.bus.Emit(events.GroupSync, events.GroupSyncPayload{Count: count})
	return nil
}

func (r *Receiver) dispatchSyncSent(ctx context.Context, sent *model.SyncSent) error {
	addr := model.NewAddress(r.identity.Number, r.identity.DeviceID)
	if err := r.processDecrypted(ctx, addr, sent.Message); err != nil {
		return err
	}
	r.bus.Emit(events.Sent, events.SentPayload{
		Destination:              sent.Destination,
		Timestamp:                sent.Timestamp,
		Message:                  sent.Message,
		ExpirationStartTimestamp: sent.ExpirationStartTimestamp,
	})
	return nil
}
