package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"e2ereceiver/internal/model"
)

// Header field numbers.
const (
	fieldHeaderPub    protowire.Number = 1
	fieldHeaderMsgNum protowire.Number = 2
	fieldHeaderPrev   protowire.Number = 3
)

// WhisperMessage field numbers.
const (
	fieldWhisperHeader     protowire.Number = 1
	fieldWhisperCiphertext protowire.Number = 2
)

// PreKeyWhisperMessage field numbers.
const (
	fieldPreKeyIdentityKey  protowire.Number = 1
	fieldPreKeyEphemeralPub protowire.Number = 2
	fieldPreKeyMessage      protowire.Number = 3
)

func encodeHeader(h model.Header) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldHeaderPub, protowire.BytesType)
	b = protowire.AppendBytes(b, h.Pub[:])
	b = protowire.AppendTag(b, fieldHeaderMsgNum, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.MsgNum))
	b = protowire.AppendTag(b, fieldHeaderPrev, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Prev))
	return b
}

func decodeHeader(b []byte) (model.Header, error) {
	var h model.Header
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return h, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldHeaderPub:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			copy(h.Pub[:], v)
			b = b[n:]
		case fieldHeaderMsgNum:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			h.MsgNum = uint32(v)
			b = b[n:]
		case fieldHeaderPrev:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			h.Prev = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return h, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return h, nil
}

// EncodeWhisperMessage serializes a CIPHERTEXT envelope body (§4.5).
func EncodeWhisperMessage(m *model.WhisperMessage) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldWhisperHeader, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeHeader(m.Header))
	if len(m.Ciphertext) > 0 {
		b = protowire.AppendTag(b, fieldWhisperCiphertext, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Ciphertext)
	}
	return b
}

// DecodeWhisperMessage parses a CIPHERTEXT envelope body.
func DecodeWhisperMessage(b []byte) (*model.WhisperMessage, error) {
	m := &model.WhisperMessage{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldWhisperHeader:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			h, err := decodeHeader(v)
			if err != nil {
				return nil, err
			}
			m.Header = h
			b = b[n:]
		case fieldWhisperCiphertext:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Ciphertext = append([]byte(nil), v...)
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

// EncodePreKeyWhisperMessage serializes a PREKEY_BUNDLE envelope body.
func EncodePreKeyWhisperMessage(m *model.PreKeyWhisperMessage) []byte {
	var b []byte
	if len(m.IdentityKey) > 0 {
		b = protowire.AppendTag(b, fieldPreKeyIdentityKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.IdentityKey)
	}
	b = protowire.AppendTag(b, fieldPreKeyEphemeralPub, protowire.BytesType)
	b = protowire.AppendBytes(b, m.EphemeralPub[:])
	b = protowire.AppendTag(b, fieldPreKeyMessage, protowire.BytesType)
	b = protowire.AppendBytes(b, EncodeWhisperMessage(&m.Message))
	return b
}

// DecodePreKeyWhisperMessage parses a PREKEY_BUNDLE envelope body.
func DecodePreKeyWhisperMessage(b []byte) (*model.PreKeyWhisperMessage, error) {
	m := &model.PreKeyWhisperMessage{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldPreKeyIdentityKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.IdentityKey = append([]byte(nil), v...)
			b = b[n:]
		case fieldPreKeyEphemeralPub:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			copy(m.EphemeralPub[:], v)
			b = b[n:]
		case fieldPreKeyMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			wm, err := DecodeWhisperMessage(v)
			if err != nil {
				return nil, err
			}
			m.Message = *wm
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
