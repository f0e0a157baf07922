package relayserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"e2ereceiver/internal/model"
	"e2ereceiver/internal/transport"
)

// fakeStore is an in-memory stand-in for *redis.RedisService, scoped to the
// handful of commands this package needs.
type fakeStore struct {
	mu    sync.Mutex
	lists map[string][]string
	blobs map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{lists: make(map[string][]string), blobs: make(map[string]string)}
}

func (f *fakeStore) RPush(ctx context.Context, key string, values ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		switch vv := v.(type) {
		case []byte:
			f.lists[key] = append(f.lists[key], string(vv))
		case string:
			f.lists[key] = append(f.lists[key], vv)
		default:
			f.lists[key] = append(f.lists[key], fmt.Sprint(vv))
		}
	}
	return nil
}

func (f *fakeStore) LRange(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...), nil
}

func (f *fakeStore) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lists, key)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.blobs[key]
	if !ok {
		return "", fmt.Errorf("fakeStore: no such key %q", key)
	}
	return v, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = fmt.Sprint(value)
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeStore, *httptest.Server) {
	fs := newFakeStore()
	s := New(fs)
	return s, fs, httptest.NewServer(s.Router())
}

func wsURL(httpURL, number string, device uint32) string {
	return fmt.Sprintf("%s/v1/websocket?number=%s&device=%d", "ws"+strings.TrimPrefix(httpURL, "http"), url.QueryEscape(number), device)
}

func TestPush_DeliversToConnectedDevice(t *testing.T) {
	s, _, srv := newTestServer(t)
	defer srv.Close()

	tr, err := transport.Open(context.Background(), wsURL(srv.URL, "+1alice", 1))
	require.NoError(t, err)
	defer tr.Close(3000, "done")

	received := make(chan *model.Request, 1)
	tr.OnRequest(func(req *model.Request, respond func(status uint16, message string)) {
		received <- req
		respond(200, "OK")
	})

	// let the relay finish registering the connection before pushing
	time.Sleep(50 * time.Millisecond)

	err = s.Push(context.Background(), model.NewAddress("+1alice", 1), []byte("ciphertext"))
	require.NoError(t, err)

	select {
	case req := <-received:
		require.Equal(t, "PUT", req.Verb)
		require.Equal(t, "/messages", req.Path)
		require.Equal(t, []byte("ciphertext"), req.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed message")
	}
}

func TestPush_QueuesOfflineWhenDisconnected(t *testing.T) {
	s, fs, srv := newTestServer(t)
	defer srv.Close()

	addr := model.NewAddress("+1bob", 1)
	err := s.Push(context.Background(), addr, []byte("offline-body"))
	require.NoError(t, err)

	values, err := fs.LRange(context.Background(), offlineKey(addr))
	require.NoError(t, err)
	require.Equal(t, []string{"offline-body"}, values)
}

func TestForwardQueued_DrainsOnReconnect(t *testing.T) {
	s, _, srv := newTestServer(t)
	defer srv.Close()

	addr := model.NewAddress("+1carol", 1)
	require.NoError(t, s.Push(context.Background(), addr, []byte("queued-1")))

	tr, err := transport.Open(context.Background(), wsURL(srv.URL, addr.Number, addr.DeviceID))
	require.NoError(t, err)
	defer tr.Close(3000, "done")

	received := make(chan *model.Request, 1)
	tr.OnRequest(func(req *model.Request, respond func(status uint16, message string)) {
		received <- req
		respond(200, "OK")
	})

	select {
	case req := <-received:
		require.Equal(t, []byte("queued-1"), req.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded queued message")
	}
}

func TestReachable_ReflectsConnectionState(t *testing.T) {
	s, _, srv := newTestServer(t)
	defer srv.Close()

	require.False(t, s.Reachable("+1dave"))

	tr, err := transport.Open(context.Background(), wsURL(srv.URL, "+1dave", 1))
	require.NoError(t, err)
	defer tr.Close(3000, "done")

	time.Sleep(50 * time.Millisecond)
	require.True(t, s.Reachable("+1dave"))
}

func TestHandlePutMessage_DecodesBase64AndPushes(t *testing.T) {
	_, fs, srv := newTestServer(t)
	defer srv.Close()

	body := base64.StdEncoding.EncodeToString([]byte("hello"))
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/messages",
		strings.NewReader(fmt.Sprintf(`{"number":"+1erin","deviceId":1,"body":%q}`, body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	values, err := fs.LRange(context.Background(), offlineKey(model.NewAddress("+1erin", 1)))
	require.NoError(t, err)
	require.Equal(t, []string{"hello"}, values)
}

func TestHandleFetchAttachment_RoundTripsViaPut(t *testing.T) {
	_, _, srv := newTestServer(t)
	defer srv.Close()

	putReq, err := http.NewRequest(http.MethodPut, srv.URL+"/attachments/7", strings.NewReader("attachment-bytes"))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(putReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	getResp, err := http.Get(srv.URL + "/attachments/7")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	got, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)
	require.Equal(t, "attachment-bytes", string(got))
}
