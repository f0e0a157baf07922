package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/model"
	"e2ereceiver/internal/wire"
)

// echoServer upgrades every connection and answers each inbound REQUEST
// frame with a 200 RESPONSE carrying the request path as the message.
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				f, err := wire.DecodeFrame(data)
				if err != nil || f.Request == nil {
					continue
				}
				resp := model.Frame{
					Type: model.FrameResponse,
					Response: &model.Response{
						ID:      f.Request.ID,
						Status:  200,
						Message: f.Request.Path,
					},
				}
				_ = conn.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(resp))
			}
		}()
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestSendRequest_ReceivesMatchingResponse(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr, err := Open(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer tr.Close(websocket.CloseNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := tr.SendRequest(ctx, "GET", "/v1/keepalive", nil)
	require.NoError(t, err)
	require.Equal(t, uint16(200), resp.Status)
	require.Equal(t, "/v1/keepalive", resp.Message)
}

func TestSendRequest_TimesOutWithoutResponse(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// never responds
	}))
	defer srv.Close()

	tr, err := Open(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer tr.Close(websocket.CloseNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = tr.SendRequest(ctx, "GET", "/slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnRequest_RespondOnce(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		req := model.Frame{
			Type:    model.FrameRequest,
			Request: &model.Request{ID: 99, Verb: "PUT", Path: "/messages", Body: []byte("envelope")},
		}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(req)))

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := wire.DecodeFrame(data)
		require.NoError(t, err)
		require.Equal(t, model.FrameResponse, f.Type)
		require.Equal(t, uint16(200), f.Response.Status)
		close(serverDone)
	}))
	defer srv.Close()

	tr, err := Open(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer tr.Close(websocket.CloseNormalClosure, "done")

	called := 0
	tr.OnRequest(func(req *model.Request, respond func(status uint16, message string)) {
		called++
		respond(200, "accepted")
		respond(500, "ignored")
	})

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to observe response")
	}
	require.Equal(t, 1, called)
}

func TestClose_FailsPendingRequests(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// accept and never respond
		select {}
	}))
	defer srv.Close()

	tr, err := Open(context.Background(), wsURL(srv))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.SendRequest(context.Background(), "GET", "/stuck", nil)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	tr.Close(3001, "ack timeout")

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was never failed on close")
	}
}
