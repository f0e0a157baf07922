package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/model"
)

func TestFrameRoundTrip_Request(t *testing.T) {
	f := model.Frame{
		Type: model.FrameRequest,
		Request: &model.Request{
			ID:   1234567890,
			Verb: "PUT",
			Path: "/messages",
			Body: []byte("encrypted-envelope"),
		},
	}

	got, err := DecodeFrame(EncodeFrame(f))
	require.NoError(t, err)
	require.Equal(t, f.Type, got.Type)
	require.Nil(t, got.Response)
	require.Equal(t, f.Request, got.Request)
}

func TestFrameRoundTrip_Response(t *testing.T) {
	f := model.Frame{
		Type: model.FrameResponse,
		Response: &model.Response{
			ID:      42,
			Status:  200,
			Message: "OK",
		},
	}

	got, err := DecodeFrame(EncodeFrame(f))
	require.NoError(t, err)
	require.Equal(t, f.Response, got.Response)
}

func TestLengthDelimitedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := model.Frame{
		Type:    model.FrameRequest,
		Request: &model.Request{ID: 7, Verb: "GET", Path: "/v1/keepalive"},
	}
	require.NoError(t, WriteLengthDelimited(&buf, f))

	got, err := ReadLengthDelimited(&buf)
	require.NoError(t, err)
	require.Equal(t, f.Request, got.Request)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := &model.Envelope{
		Type:         model.EnvelopeCiphertext,
		Source:       "+15551234567",
		SourceDevice: 1,
		Timestamp:    1700000000,
		Content:      []byte("ciphertext-bytes"),
	}

	got, err := DecodeEnvelope(EncodeEnvelope(env))
	require.NoError(t, err)
	require.Equal(t, env, got)
}

func TestDataMessageRoundTrip_WithGroupAndAttachments(t *testing.T) {
	body := "hello"
	name := "Friends"
	dm := &model.DataMessage{
		Flags: 0,
		Body:  &body,
		Attachments: []*model.AttachmentPointer{
			{ID: 1, Key: []byte("key1")},
			{ID: 2, Key: []byte("key2")},
		},
		Group: &model.GroupContext{
			ID:      []byte("group-id"),
			Type:    model.GroupUpdate,
			Name:    &name,
			Members: []string{"+1", "+2", "+3"},
		},
		ExpireTimer: 3600,
	}

	got, err := DecodeDataMessage(EncodeDataMessage(dm))
	require.NoError(t, err)
	require.Equal(t, dm, got)
}

func TestSyncMessageRoundTrip_Read(t *testing.T) {
	sm := &model.SyncMessage{
		Read: []*model.SyncRead{
			{Sender: "+1", Timestamp: 100},
			{Sender: "+2", Timestamp: 200},
		},
	}

	got, err := DecodeContent([]byte(EncodeContent(&model.Content{SyncMessage: sm})))
	require.NoError(t, err)
	require.Equal(t, sm, got.SyncMessage)
	require.Nil(t, got.DataMessage)
}
