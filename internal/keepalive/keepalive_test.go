package keepalive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/model"
	"e2ereceiver/internal/transport"
	"e2ereceiver/internal/wire"
)

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// pingCountingServer answers every REQUEST with 200 and counts how many
// were received, regardless of path.
func pingCountingServer(t *testing.T, count *atomic.Int32) *httptest.Server {
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
				count.Add(1)
				resp := model.Frame{
					Type:     model.FrameResponse,
					Response: &model.Response{ID: f.Request.ID, Status: 200, Message: "ok"},
				}
				_ = conn.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(resp))
			}
		}()
	}))
}

func TestKeepalive_PingsAfterInterval(t *testing.T) {
	var pings atomic.Int32
	srv := pingCountingServer(t, &pings)
	defer srv.Close()

	tr, err := transport.Open(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer tr.Close(websocket.CloseNormalClosure, "done")

	cfg := DefaultConfig()
	cfg.PingInterval = 30 * time.Millisecond
	cfg.AckTimeout = 200 * time.Millisecond
	k := New(cfg)
	k.Attach(tr)

	require.Eventually(t, func() bool { return pings.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return k.State() == Armed }, time.Second, 5*time.Millisecond)
}

func TestKeepalive_ActivityResetsPingTimer(t *testing.T) {
	var pings atomic.Int32
	srv := pingCountingServer(t, &pings)
	defer srv.Close()

	tr, err := transport.Open(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer tr.Close(websocket.CloseNormalClosure, "done")

	cfg := DefaultConfig()
	cfg.PingInterval = 100 * time.Millisecond
	cfg.AckTimeout = 200 * time.Millisecond
	k := New(cfg)
	k.Attach(tr)

	// Keep sending unrelated requests faster than the ping interval; the
	// ping timer should keep getting reset by inbound activity (every
	// SendRequest's matching RESPONSE counts as inbound traffic) and the
	// dedicated ping path should never fire.
	for i := 0; i < 5; i++ {
		_, err := tr.SendRequest(context.Background(), "GET", "/noop", nil)
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
	}

	// pingCountingServer counts every request, so exactly the five /noop
	// requests are expected and no keepalive ping on top of them.
	require.Equal(t, int32(5), pings.Load())
}

func TestKeepalive_AckTimeoutClosesTransport(t *testing.T) {
	// Server accepts the ping but never answers it.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		select {}
	}))
	defer srv.Close()

	tr, err := transport.Open(context.Background(), wsURL(srv))
	require.NoError(t, err)

	closed := make(chan struct {
		code   int
		reason string
	}, 1)
	tr.OnClose(func(code int, reason string) {
		closed <- struct {
			code   int
			reason string
		}{code, reason}
	})

	cfg := DefaultConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.AckTimeout = 30 * time.Millisecond
	k := New(cfg)
	k.Attach(tr)

	select {
	case got := <-closed:
		require.Equal(t, 3001, got.code)
	case <-time.After(2 * time.Second):
		t.Fatal("transport was never force-closed after ack timeout")
	}
}

func TestKeepalive_DisabledDisconnectStillPings(t *testing.T) {
	var pings atomic.Int32
	srv := pingCountingServer(t, &pings)
	defer srv.Close()

	tr, err := transport.Open(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer tr.Close(websocket.CloseNormalClosure, "done")

	cfg := DefaultConfig()
	cfg.Disconnect = false
	cfg.PingInterval = 30 * time.Millisecond
	k := New(cfg)
	k.Attach(tr)

	require.Eventually(t, func() bool { return pings.Load() >= 1 }, time.Second, 5*time.Millisecond)
}
