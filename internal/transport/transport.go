// Package transport implements the Frame Transport (§4.1): a request/response
// multiplex over a single persistent websocket connection, one frame per
// binary websocket message,
// correlating RESPONSE frames to outstanding SendRequest calls by a
// randomly chosen 64-bit id, and delivering inbound REQUEST frames to a
// registered handler that must call respond exactly once.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"e2ereceiver/internal/log"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
	"e2ereceiver/internal/wire"
	"go.uber.org/zap"
)

// writeWait bounds how long a close control frame may take to write.
const writeWait = 2 * time.Second

// RequestHandler is invoked for every inbound REQUEST frame. It must call
// respond exactly once; additional calls are ignored and logged.
type RequestHandler func(req *model.Request, respond func(status uint16, message string))

type pendingRequest struct {
	resultCh chan result
}

type result struct {
	resp *model.Response
	err  error
}

// Transport owns one websocket connection and the pending-request table.
// Per §5 the reactor is single-threaded in spirit, but the read loop and
// callers of SendRequest run on different goroutines, so the table is
// guarded by a mutex.
type Transport struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint64]*pendingRequest
	closed  bool

	onRequest  RequestHandler
	onActivity func()
	onClose    func(code int, reason string)

	readDone chan struct{}
}

// Open dials url and starts the read loop. The caller must call OnRequest
// before traffic that depends on inbound requests is expected.
func Open(ctx context.Context, url string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "transport: dial")
	}
	t := &Transport{
		conn:     conn,
		pending:  make(map[uint64]*pendingRequest),
		readDone: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// OnRequest registers the handler for inbound REQUEST frames.
func (t *Transport) OnRequest(h RequestHandler) {
	t.mu.Lock()
	t.onRequest = h
	t.mu.Unlock()
}

// OnActivity registers a callback invoked after any inbound frame is
// received, used by keepalive to reset its ping timer (§4.2, §5).
func (t *Transport) OnActivity(h func()) {
	t.mu.Lock()
	t.onActivity = h
	t.mu.Unlock()
}

// OnClose registers a callback invoked once the transport has torn down,
// either because Close was called or the remote end closed the socket.
// Callbacks from successive calls all run, in registration order.
func (t *Transport) OnClose(h func(code int, reason string)) {
	t.mu.Lock()
	prev := t.onClose
	t.onClose = func(code int, reason string) {
		if prev != nil {
			prev(code, reason)
		}
		h(code, reason)
	}
	t.mu.Unlock()
}

// SendRequest allocates a random 64-bit id, writes a REQUEST frame, and
// blocks until the matching RESPONSE arrives, ctx is cancelled, or the
// transport closes.
func (t *Transport) SendRequest(ctx context.Context, verb, path string, body []byte) (*model.Response, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, &receivererr.ConnectionClosedError{Reason: "transport already closed"}
	}

	id := t.allocateID()
	pr := &pendingRequest{resultCh: make(chan result, 1)}
	t.pending[id] = pr
	conn := t.conn
	t.mu.Unlock()

	frame := model.Frame{
		Type: model.FrameRequest,
		Request: &model.Request{
			ID:   id,
			Verb: verb,
			Path: path,
			Body: body,
		},
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(frame)); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, errors.Wrap(err, "transport: write request")
	}

	select {
	case r := <-pr.resultCh:
		return r.resp, r.err
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// allocateID draws a cryptographically random id. A collision with an
// in-flight id is a fatal programmer error per §4.1 ("Collisions ... are
// treated as fatal programmer errors") — with a 64-bit random id space this
// should never be observed outside of a broken RNG.
func (t *Transport) allocateID() uint64 {
	for {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			log.Fatal("transport: crypto/rand failed", zap.Error(err))
		}
		id := binary.BigEndian.Uint64(b[:])
		if _, exists := t.pending[id]; !exists {
			return id
		}
		log.Fatal("transport: request id collision in pending table", zap.Uint64("id", id))
	}
}

func (t *Transport) readLoop() {
	defer close(t.readDone)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			code, reason := closeInfoFromErr(err)
			t.teardown(code, reason)
			return
		}

		t.mu.Lock()
		onActivity := t.onActivity
		t.mu.Unlock()
		if onActivity != nil {
			onActivity()
		}

		frame, err := wire.DecodeFrame(data)
		if err != nil {
			log.Warn("transport: dropping unparseable frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case model.FrameResponse:
			t.handleResponse(frame.Response)
		case model.FrameRequest:
			t.handleRequest(frame.Request)
		default:
			log.Warn("transport: ignoring frame of unknown type")
		}
	}
}

func (t *Transport) handleResponse(resp *model.Response) {
	if resp == nil {
		return
	}
	t.mu.Lock()
	pr, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if !ok {
		log.Warn("transport: unmatched response", zap.Uint64("id", resp.ID), zap.Error(receivererr.ErrUnmatchedResponse))
		return
	}

	if resp.Status >= 200 && resp.Status < 300 {
		pr.resultCh <- result{resp: resp}
	} else {
		pr.resultCh <- result{err: &receivererr.TransportStatusError{Status: resp.Status, Message: resp.Message}}
	}
}

func (t *Transport) handleRequest(req *model.Request) {
	if req == nil {
		return
	}
	t.mu.Lock()
	handler := t.onRequest
	conn := t.conn
	t.mu.Unlock()

	if handler == nil {
		t.writeResponse(conn, req.ID, 404, "Not found")
		return
	}

	var once sync.Once
	handler(req, func(status uint16, message string) {
		responded := false
		once.Do(func() { responded = true })
		if !responded {
			log.Warn("transport: respond called more than once", zap.Uint64("id", req.ID))
			return
		}
		t.writeResponse(conn, req.ID, status, message)
	})
}

func (t *Transport) writeResponse(conn *websocket.Conn, id uint64, status uint16, message string) {
	frame := model.Frame{
		Type: model.FrameResponse,
		Response: &model.Response{
			ID:      id,
			Status:  status,
			Message: message,
		},
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(frame)); err != nil {
		log.Warn("transport: write response failed", zap.Error(err))
	}
}

// Close sends a close frame with the given code/reason and tears the
// transport down, failing every pending outgoing request (§4.1).
func (t *Transport) Close(code int, reason string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	conn := t.conn
	t.mu.Unlock()

	deadline := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, deadline, time.Now().Add(writeWait))
	_ = conn.Close()

	t.teardown(code, reason)
}

func (t *Transport) teardown(code int, reason string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	pending := t.pending
	t.pending = make(map[uint64]*pendingRequest)
	onClose := t.onClose
	t.mu.Unlock()

	closeErr := &receivererr.ConnectionClosedError{Code: code, Reason: reason}
	for _, pr := range pending {
		pr.resultCh <- result{err: closeErr}
	}

	if onClose != nil {
		onClose(code, reason)
	}
}

// Status reports the underlying connection state. -1 means no socket,
// matching §4.3's sentinel for "no socket".
func (t *Transport) Status() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return -1
	}
	return 1
}

func closeInfoFromErr(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
