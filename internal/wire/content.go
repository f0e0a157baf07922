package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"e2ereceiver/internal/model"
)

// Content field numbers.
const (
	fieldContentDataMessage protowire.Number = 1
	fieldContentSyncMessage protowire.Number = 2
)

// DataMessage field numbers.
const (
	fieldDataFlags       protowire.Number = 1
	fieldDataBody        protowire.Number = 2
	fieldDataAttachments protowire.Number = 3
	fieldDataGroup       protowire.Number = 4
	fieldDataExpireTimer protowire.Number = 5
)

// AttachmentPointer field numbers.
const (
	fieldAttID   protowire.Number = 1
	fieldAttKey  protowire.Number = 2
	fieldAttData protowire.Number = 3
)

// GroupContext field numbers.
const (
	fieldGroupID      protowire.Number = 1
	fieldGroupType    protowire.Number = 2
	fieldGroupName    protowire.Number = 3
	fieldGroupAvatar  protowire.Number = 4
	fieldGroupMembers protowire.Number = 5
)

// SyncMessage field numbers.
const (
	fieldSyncSent     protowire.Number = 1
	fieldSyncContacts protowire.Number = 2
	fieldSyncGroups   protowire.Number = 3
	fieldSyncBlocked  protowire.Number = 4
	fieldSyncRequest  protowire.Number = 5
	fieldSyncRead     protowire.Number = 6
)

// SyncSent field numbers.
const (
	fieldSentDestination protowire.Number = 1
	fieldSentMessage     protowire.Number = 2
	fieldSentTimestamp   protowire.Number = 3
	fieldSentExpireStart protowire.Number = 4
)

const fieldBlobAttachment protowire.Number = 1
const fieldBlockedNumbers protowire.Number = 1
const fieldRequestType protowire.Number = 1
const (
	fieldReadSender    protowire.Number = 1
	fieldReadTimestamp protowire.Number = 2
)

func EncodeContent(c *model.Content) []byte {
	var b []byte
	if c.DataMessage != nil {
		b = protowire.AppendTag(b, fieldContentDataMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeDataMessage(c.DataMessage))
	}
	if c.SyncMessage != nil {
		b = protowire.AppendTag(b, fieldContentSyncMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSyncMessage(c.SyncMessage))
	}
	return b
}

func DecodeContent(b []byte) (*model.Content, error) {
	c := &model.Content{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldContentDataMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			dm, err := DecodeDataMessage(v)
			if err != nil {
				return nil, err
			}
			c.DataMessage = dm
			b = b[n:]
		case fieldContentSyncMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			sm, err := decodeSyncMessage(v)
			if err != nil {
				return nil, err
			}
			c.SyncMessage = sm
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return c, nil
}

func EncodeDataMessage(m *model.DataMessage) []byte {
	var b []byte
	if m.Flags != 0 {
		b = protowire.AppendTag(b, fieldDataFlags, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Flags))
	}
	if m.Body != nil {
		b = protowire.AppendTag(b, fieldDataBody, protowire.BytesType)
		b = protowire.AppendString(b, *m.Body)
	}
	for _, a := range m.Attachments {
		b = protowire.AppendTag(b, fieldDataAttachments, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAttachment(a))
	}
	if m.Group != nil {
		b = protowire.AppendTag(b, fieldDataGroup, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeGroupContext(m.Group))
	}
	if m.ExpireTimer != 0 {
		b = protowire.AppendTag(b, fieldDataExpireTimer, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ExpireTimer))
	}
	return b
}

func DecodeDataMessage(b []byte) (*model.DataMessage, error) {
	m := &model.DataMessage{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldDataFlags:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Flags = uint32(v)
			b = b[n:]
		case fieldDataBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s := string(v)
			m.Body = &s
			b = b[n:]
		case fieldDataAttachments:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a, err := decodeAttachment(v)
			if err != nil {
				return nil, err
			}
			m.Attachments = append(m.Attachments, a)
			b = b[n:]
		case fieldDataGroup:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g, err := decodeGroupContext(v)
			if err != nil {
				return nil, err
			}
			m.Group = g
			b = b[n:]
		case fieldDataExpireTimer:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.ExpireTimer = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

func encodeAttachment(a *model.AttachmentPointer) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldAttID, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, a.ID)
	if len(a.Key) > 0 {
		b = protowire.AppendTag(b, fieldAttKey, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Key)
	}
	if len(a.Data) > 0 {
		b = protowire.AppendTag(b, fieldAttData, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Data)
	}
	return b
}

func decodeAttachment(b []byte) (*model.AttachmentPointer, error) {
	a := &model.AttachmentPointer{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldAttID:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.ID = v
			b = b[n:]
		case fieldAttKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.Key = append([]byte(nil), v...)
			b = b[n:]
		case fieldAttData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			a.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return a, nil
}

func encodeGroupContext(g *model.GroupContext) []byte {
	var b []byte
	if len(g.ID) > 0 {
		b = protowire.AppendTag(b, fieldGroupID, protowire.BytesType)
		b = protowire.AppendBytes(b, g.ID)
	}
	b = protowire.AppendTag(b, fieldGroupType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.Type))
	if g.Name != nil {
		b = protowire.AppendTag(b, fieldGroupName, protowire.BytesType)
		b = protowire.AppendString(b, *g.Name)
	}
	if len(g.Avatar) > 0 {
		b = protowire.AppendTag(b, fieldGroupAvatar, protowire.BytesType)
		b = protowire.AppendBytes(b, g.Avatar)
	}
	for _, m := range g.Members {
		b = protowire.AppendTag(b, fieldGroupMembers, protowire.BytesType)
		b = protowire.AppendString(b, m)
	}
	return b
}

func decodeGroupContext(b []byte) (*model.GroupContext, error) {
	g := &model.GroupContext{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldGroupID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.ID = append([]byte(nil), v...)
			b = b[n:]
		case fieldGroupType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.Type = model.GroupType(v)
			b = b[n:]
		case fieldGroupName:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s := string(v)
			g.Name = &s
			b = b[n:]
		case fieldGroupAvatar:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.Avatar = append([]byte(nil), v...)
			b = b[n:]
		case fieldGroupMembers:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.Members = append(g.Members, string(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return g, nil
}

func encodeSyncMessage(s *model.SyncMessage) []byte {
	var b []byte
	if s.Sent != nil {
		b = protowire.AppendTag(b, fieldSyncSent, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSyncSent(s.Sent))
	}
	if s.Contacts != nil {
		b = protowire.AppendTag(b, fieldSyncContacts, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAttachmentBlob(s.Contacts))
	}
	if s.Groups != nil {
		b = protowire.AppendTag(b, fieldSyncGroups, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAttachmentBlob(s.Groups))
	}
	if s.Blocked != nil {
		b = protowire.AppendTag(b, fieldSyncBlocked, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSyncBlocked(s.Blocked))
	}
	if s.Request != nil {
		b = protowire.AppendTag(b, fieldSyncRequest, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSyncRequest(s.Request))
	}
	for _, r := range s.Read {
		b = protowire.AppendTag(b, fieldSyncRead, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSyncRead(r))
	}
	return b
}

func decodeSyncMessage(b []byte) (*model.SyncMessage, error) {
	s := &model.SyncMessage{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldSyncSent:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			sent, err := decodeSyncSent(v)
			if err != nil {
				return nil, err
			}
			s.Sent = sent
			b = b[n:]
		case fieldSyncContacts:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			blob, err := decodeAttachmentBlob(v)
			if err != nil {
				return nil, err
			}
			s.Contacts = blob
			b = b[n:]
		case fieldSyncGroups:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			blob, err := decodeAttachmentBlob(v)
			if err != nil {
				return nil, err
			}
			s.Groups = blob
			b = b[n:]
		case fieldSyncBlocked:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			blocked, err := decodeSyncBlocked(v)
			if err != nil {
				return nil, err
			}
			s.Blocked = blocked
			b = b[n:]
		case fieldSyncRequest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			req, err := decodeSyncRequest(v)
			if err != nil {
				return nil, err
			}
			s.Request = req
			b = b[n:]
		case fieldSyncRead:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			read, err := decodeSyncRead(v)
			if err != nil {
				return nil, err
			}
			s.Read = append(s.Read, read)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return s, nil
}

func encodeSyncSent(s *model.SyncSent) []byte {
	var b []byte
	if s.Destination != "" {
		b = protowire.AppendTag(b, fieldSentDestination, protowire.BytesType)
		b = protowire.AppendString(b, s.Destination)
	}
	if s.Message != nil {
		b = protowire.AppendTag(b, fieldSentMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeDataMessage(s.Message))
	}
	if s.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldSentTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, s.Timestamp)
	}
	if s.ExpirationStartTimestamp != nil {
		b = protowire.AppendTag(b, fieldSentExpireStart, protowire.VarintType)
		b = protowire.AppendVarint(b, *s.ExpirationStartTimestamp)
	}
	return b
}

func decodeSyncSent(b []byte) (*model.SyncSent, error) {
	s := &model.SyncSent{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldSentDestination:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.Destination = string(v)
			b = b[n:]
		case fieldSentMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			dm, err := DecodeDataMessage(v)
			if err != nil {
				return nil, err
			}
			s.Message = dm
			b = b[n:]
		case fieldSentTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.Timestamp = v
			b = b[n:]
		case fieldSentExpireStart:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.ExpirationStartTimestamp = &v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return s, nil
}

func encodeAttachmentBlob(a *model.SyncAttachmentBlob) []byte {
	var b []byte
	if a.Attachment != nil {
		b = protowire.AppendTag(b, fieldBlobAttachment, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAttachment(a.Attachment))
	}
	return b
}

func decodeAttachmentBlob(b []byte) (*model.SyncAttachmentBlob, error) {
	blob := &model.SyncAttachmentBlob{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldBlobAttachment:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			att, err := decodeAttachment(v)
			if err != nil {
				return nil, err
			}
			blob.Attachment = att
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return blob, nil
}

func encodeSyncBlocked(s *model.SyncBlocked) []byte {
	var b []byte
	for _, num := range s.Numbers {
		b = protowire.AppendTag(b, fieldBlockedNumbers, protowire.BytesType)
		b = protowire.AppendString(b, num)
	}
	return b
}

func decodeSyncBlocked(b []byte) (*model.SyncBlocked, error) {
	s := &model.SyncBlocked{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldBlockedNumbers:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.Numbers = append(s.Numbers, string(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return s, nil
}

func encodeSyncRequest(r *model.SyncRequest) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRequestType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Type))
	return b
}

func decodeSyncRequest(b []byte) (*model.SyncRequest, error) {
	r := &model.SyncRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldRequestType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Type = int32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func encodeSyncRead(r *model.SyncRead) []byte {
	var b []byte
	if r.Sender != "" {
		b = protowire.AppendTag(b, fieldReadSender, protowire.BytesType)
		b = protowire.AppendString(b, r.Sender)
	}
	if r.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldReadTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, r.Timestamp)
	}
	return b
}

func decodeSyncRead(b []byte) (*model.SyncRead, error) {
	r := &model.SyncRead{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldReadSender:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Sender = string(v)
			b = b[n:]
		case fieldReadTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Timestamp = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}
