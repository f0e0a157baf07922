package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"e2ereceiver/internal/model"
)

// WriteLengthDelimitedBytes writes a 4-byte big-endian length prefix
// followed by body, the same on-wire shape as WriteLengthDelimited but for
// an already-encoded record rather than a Frame — used to stream the
// contact/group export blobs of §4.6.
func WriteLengthDelimitedBytes(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadLengthDelimitedBytes reads one record written by
// WriteLengthDelimitedBytes. Returns io.EOF when r is exhausted between
// records (a clean end of stream).
func ReadLengthDelimitedBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("wire: record too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// ContactRecord field numbers.
const (
	fieldContactNumber protowire.Number = 1
	fieldContactName   protowire.Number = 2
	fieldContactAvatar protowire.Number = 3
)

func EncodeContactRecord(c *model.ContactRecord) []byte {
	var b []byte
	if c.Number != "" {
		b = protowire.AppendTag(b, fieldContactNumber, protowire.BytesType)
		b = protowire.AppendString(b, c.Number)
	}
	if c.Name != "" {
		b = protowire.AppendTag(b, fieldContactName, protowire.BytesType)
		b = protowire.AppendString(b, c.Name)
	}
	if c.Avatar != nil {
		b = protowire.AppendTag(b, fieldContactAvatar, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAttachment(c.Avatar))
	}
	return b
}

func DecodeContactRecord(b []byte) (*model.ContactRecord, error) {
	c := &model.ContactRecord{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldContactNumber:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			c.Number = string(v)
			b = b[n:]
		case fieldContactName:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			c.Name = string(v)
			b = b[n:]
		case fieldContactAvatar:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			ap, err := decodeAttachment(v)
			if err != nil {
				return nil, err
			}
			c.Avatar = ap
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

// GroupRecord field numbers.
const (
	fieldGroupRecID      protowire.Number = 1
	fieldGroupRecName    protowire.Number = 2
	fieldGroupRecMembers protowire.Number = 3
	fieldGroupRecAvatar  protowire.Number = 4
	fieldGroupRecActive  protowire.Number = 5
)

func EncodeGroupRecord(g *model.GroupRecord) []byte {
	var b []byte
	if len(g.ID) > 0 {
		b = protowire.AppendTag(b, fieldGroupRecID, protowire.BytesType)
		b = protowire.AppendBytes(b, g.ID)
	}
	if g.Name != "" {
		b = protowire.AppendTag(b, fieldGroupRecName, protowire.BytesType)
		b = protowire.AppendString(b, g.Name)
	}
	for _, m := range g.Members {
		b = protowire.AppendTag(b, fieldGroupRecMembers, protowire.BytesType)
		b = protowire.AppendString(b, m)
	}
	if g.Avatar != nil {
		b = protowire.AppendTag(b, fieldGroupRecAvatar, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeAttachment(g.Avatar))
	}
	b = protowire.AppendTag(b, fieldGroupRecActive, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(g.Active))
	return b
}

func DecodeGroupRecord(b []byte) (*model.GroupRecord, error) {
	g := &model.GroupRecord{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldGroupRecID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.ID = append([]byte(nil), v...)
			b = b[n:]
		case fieldGroupRecName:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.Name = string(v)
			b = b[n:]
		case fieldGroupRecMembers:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.Members = append(g.Members, string(v))
			b = b[n:]
		case fieldGroupRecAvatar:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			ap, err := decodeAttachment(v)
			if err != nil {
				return nil, err
			}
			g.Avatar = ap
			b = b[n:]
		case fieldGroupRecActive:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			g.Active = v != 0
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

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
