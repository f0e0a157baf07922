// Package wire implements the WebSocketMessage frame codec (§3, §6): a
// tagged union of REQUEST/RESPONSE carried as a hand-encoded
// protobuf-wire-format message (EncodeFrame adds no length prefix;
// WriteLengthDelimited adds a 4-byte one for raw byte streams), using
// google.golang.org/protobuf/encoding/protowire directly rather than
// generated bindings (the protocol-buffer schema compiler is an explicit
// out-of-scope external collaborator per §1).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"e2ereceiver/internal/model"
)

// WebSocketMessage field numbers.
const (
	fieldMessageType     protowire.Number = 1
	fieldMessageRequest  protowire.Number = 2
	fieldMessageResponse protowire.Number = 3
)

// WebSocketMessage.Request field numbers.
const (
	fieldRequestID   protowire.Number = 1
	fieldRequestVerb protowire.Number = 2
	fieldRequestPath protowire.Number = 3
	fieldRequestBody protowire.Number = 4
)

// WebSocketMessage.Response field numbers.
const (
	fieldResponseID      protowire.Number = 1
	fieldResponseStatus  protowire.Number = 2
	fieldResponseMessage protowire.Number = 3
	fieldResponseBody    protowire.Number = 4
)

// MaxFrameBytes bounds a single decoded frame body to guard against a
// malicious or corrupt length prefix.
const MaxFrameBytes = 1 << 20 // 1 MiB

// EncodeFrame serializes f as a single protobuf-wire-format message body
// (no length prefix — callers writing over a message-oriented transport,
// such as a websocket connection, use this directly as one binary message).
func EncodeFrame(f model.Frame) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldMessageType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Type))
	if f.Request != nil {
		b = protowire.AppendTag(b, fieldMessageRequest, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRequest(f.Request))
	}
	if f.Response != nil {
		b = protowire.AppendTag(b, fieldMessageResponse, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeResponse(f.Response))
	}
	return b
}

// DecodeFrame parses a single message body produced by EncodeFrame.
func DecodeFrame(b []byte) (model.Frame, error) {
	var f model.Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldMessageType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.Type = model.FrameType(v)
			b = b[n:]
		case fieldMessageRequest:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			req, err := decodeRequest(v)
			if err != nil {
				return f, err
			}
			f.Request = req
			b = b[n:]
		case fieldMessageResponse:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			resp, err := decodeResponse(v)
			if err != nil {
				return f, err
			}
			f.Response = resp
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return f, nil
}

func encodeRequest(r *model.Request) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRequestID, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, r.ID)
	if r.Verb != "" {
		b = protowire.AppendTag(b, fieldRequestVerb, protowire.BytesType)
		b = protowire.AppendString(b, r.Verb)
	}
	if r.Path != "" {
		b = protowire.AppendTag(b, fieldRequestPath, protowire.BytesType)
		b = protowire.AppendString(b, r.Path)
	}
	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, fieldRequestBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	return b
}

func decodeRequest(b []byte) (*model.Request, error) {
	req := &model.Request{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldRequestID:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			req.ID = v
			b = b[n:]
		case fieldRequestVerb:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			req.Verb = string(v)
			b = b[n:]
		case fieldRequestPath:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			req.Path = string(v)
			b = b[n:]
		case fieldRequestBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			req.Body = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return req, nil
}

func encodeResponse(r *model.Response) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldResponseID, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, r.ID)
	b = protowire.AppendTag(b, fieldResponseStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Status))
	if r.Message != "" {
		b = protowire.AppendTag(b, fieldResponseMessage, protowire.BytesType)
		b = protowire.AppendString(b, r.Message)
	}
	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, fieldResponseBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	return b
}

func decodeResponse(b []byte) (*model.Response, error) {
	resp := &model.Response{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldResponseID:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			resp.ID = v
			b = b[n:]
		case fieldResponseStatus:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			resp.Status = uint16(v)
			b = b[n:]
		case fieldResponseMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			resp.Message = string(v)
			b = b[n:]
		case fieldResponseBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			resp.Body = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return resp, nil
}

// WriteLengthDelimited writes a 4-byte big-endian length prefix followed by
// the encoded frame, for use over a raw byte stream (e.g. in tests run
// against net.Pipe rather than a websocket connection).
func WriteLengthDelimited(w io.Writer, f model.Frame) error {
	body := EncodeFrame(f)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadLengthDelimited reads one frame written by WriteLengthDelimited.
func ReadLengthDelimited(r io.Reader) (model.Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return model.Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return model.Frame{}, fmt.Errorf("wire: frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return model.Frame{}, err
	}
	return DecodeFrame(body)
}
