package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"e2ereceiver/internal/model"
)

// Envelope field numbers (§3).
const (
	fieldEnvelopeType         protowire.Number = 1
	fieldEnvelopeSource       protowire.Number = 2
	fieldEnvelopeSourceDevice protowire.Number = 3
	fieldEnvelopeTimestamp    protowire.Number = 4
	fieldEnvelopeLegacyBody   protowire.Number = 5
	fieldEnvelopeContent      protowire.Number = 6
)

func EncodeEnvelope(e *model.Envelope) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldEnvelopeType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Type))
	if e.Source != "" {
		b = protowire.AppendTag(b, fieldEnvelopeSource, protowire.BytesType)
		b = protowire.AppendString(b, e.Source)
	}
	if e.SourceDevice != 0 {
		b = protowire.AppendTag(b, fieldEnvelopeSourceDevice, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.SourceDevice))
	}
	if e.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldEnvelopeTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Timestamp)
	}
	if len(e.LegacyBody) > 0 {
		b = protowire.AppendTag(b, fieldEnvelopeLegacyBody, protowire.BytesType)
		b = protowire.AppendBytes(b, e.LegacyBody)
	}
	if len(e.Content) > 0 {
		b = protowire.AppendTag(b, fieldEnvelopeContent, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Content)
	}
	return b
}

func DecodeEnvelope(b []byte) (*model.Envelope, error) {
	e := &model.Envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldEnvelopeType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Type = model.EnvelopeType(v)
			b = b[n:]
		case fieldEnvelopeSource:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Source = string(v)
			b = b[n:]
		case fieldEnvelopeSourceDevice:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.SourceDevice = uint32(v)
			b = b[n:]
		case fieldEnvelopeTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Timestamp = v
			b = b[n:]
		case fieldEnvelopeLegacyBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.LegacyBody = append([]byte(nil), v...)
			b = b[n:]
		case fieldEnvelopeContent:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e.Content = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return e, nil
}
