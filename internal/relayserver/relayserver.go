// Package relayserver implements the relay side of the wire contract (§6):
// a websocket endpoint speaking the same Frame Transport protocol the
// receiver's internal/transport dials, plus the HTTP side-channel
// (device reachability probe, attachment fetch) the receiver's
// internal/relayclient calls. Grounded on the teacher's
// internal/service/server.HttpServer (mapper of userID to *websocket.Conn,
// ForwardUnsentMessages/PutMessagesToCache), generalized from a single
// userID key to number+device addressing and from raw JSON frames to the
// length-free Frame codec used over a message-oriented websocket.
//
// This package exists for local dev/testing only (§5 Non-goals): the
// receiver's specified scope ends at the wire contract it consumes, not at
// operating a production-grade relay.
package relayserver

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
	"e2ereceiver/internal/wire"

	"go.uber.org/zap"
)

// store is the slice of *redis.RedisService this package actually needs:
// the offline message queue (RPush/LRange/Del) and the attachment blob
// store (Get/Set). Kept as a local interface, in the same spirit as
// internal/store's SessionStore/RosterStore/BlockedStore, so tests can fake
// the backing store instead of requiring a live redis.
type store interface {
	RPush(ctx context.Context, key string, value ...any) error
	LRange(ctx context.Context, key string) ([]string, error)
	Del(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// pushTimeout bounds how long Push waits for a connected device to
// acknowledge a forwarded message before falling back to the offline queue.
const pushTimeout = 5 * time.Second

type pendingPush struct {
	resultCh chan *model.Response
}

// conn is one registered device's live websocket, plus the push
// correlation table for frames the relay itself originates (PUT /messages).
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	pending map[uint64]*pendingPush
}

// Server holds every currently-connected device and the redis-backed
// offline queue / attachment blob store.
type Server struct {
	mu    sync.Mutex
	conns map[model.Address]*conn

	redis store
}

func New(redisSvc store) *Server {
	return &Server{
		conns: make(map[model.Address]*conn),
		redis: redisSvc,
	}
}

// HandleWebSocket upgrades the connection for addr and runs its read loop
// until the socket closes, forwarding any queued offline messages first
// (mirrors the teacher's HandleInitWS calling ForwardUnsentMessages right
// after registering the connection).
func (s *Server) HandleWebSocket(ws *websocket.Conn, addr model.Address) {
	c := &conn{ws: ws, pending: make(map[uint64]*pendingPush)}

	s.mu.Lock()
	s.conns[addr] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conns[addr] == c {
			delete(s.conns, addr)
		}
		s.mu.Unlock()
		ws.Close()
	}()

	go s.forwardQueued(addr, c)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Debug("relayserver: websocket closed", zap.String("address", addr.String()), zap.Error(err))
			return
		}

		frame, err := wire.DecodeFrame(data)
		if err != nil {
			log.Warn("relayserver: dropping unparseable frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case model.FrameRequest:
			s.handleRequest(c, frame.Request)
		case model.FrameResponse:
			s.handleResponse(c, frame.Response)
		}
	}
}

// handleRequest answers the one inbound request verb the receiver ever
// sends over this connection: KA's "GET /v1/keepalive" (§4.2).
func (s *Server) handleRequest(c *conn, req *model.Request) {
	if req == nil {
		return
	}
	status, message := uint16(404), "Not found"
	if req.Verb == "GET" && req.Path == "/v1/keepalive" {
		status, message = 200, "OK"
	}
	resp := model.Frame{
		Type: model.FrameResponse,
		Response: &model.Response{ID: req.ID, Status: status, Message: message},
	}
	c.mu.Lock()
	err := c.ws.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(resp))
	c.mu.Unlock()
	if err != nil {
		log.Warn("relayserver: write keepalive response failed", zap.Error(err))
	}
}

func (s *Server) handleResponse(c *conn, resp *model.Response) {
	if resp == nil {
		return
	}
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if ok {
		p.resultCh <- resp
	}
}

// Push delivers body (already signaling-key-encrypted by the sender, opaque
// to the relay) to addr. A connected device gets it immediately as a
// PUT /messages request; anything else — no connection, a write error, or
// a timeout waiting for the 200 — falls back to the redis-backed offline
// queue, exactly like the teacher's PutMessagesToCache fallback in
// processWSMessage.
func (s *Server) Push(ctx context.Context, addr model.Address, body []byte) error {
	s.mu.Lock()
	c := s.conns[addr]
	s.mu.Unlock()

	if c == nil {
		return s.enqueueOffline(ctx, addr, body)
	}

	id := allocateID()
	p := &pendingPush{resultCh: make(chan *model.Response, 1)}
	c.mu.Lock()
	c.pending[id] = p
	frame := model.Frame{
		Type: model.FrameRequest,
		Request: &model.Request{ID: id, Verb: "PUT", Path: "/messages", Body: body},
	}
	err := c.ws.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(frame))
	c.mu.Unlock()
	if err != nil {
		return s.enqueueOffline(ctx, addr, body)
	}

	select {
	case resp := <-p.resultCh:
		if resp.Status >= 200 && resp.Status < 300 {
			return nil
		}
		return s.enqueueOffline(ctx, addr, body)
	case <-time.After(pushTimeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return s.enqueueOffline(ctx, addr, body)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) enqueueOffline(ctx context.Context, addr model.Address, body []byte) error {
	return errors.Wrap(s.redis.RPush(ctx, offlineKey(addr), body), "relayserver: enqueue offline message")
}

// forwardQueued drains addr's offline queue into the freshly opened
// connection, in arrival order.
func (s *Server) forwardQueued(addr model.Address, c *conn) {
	ctx := context.Background()
	values, err := s.redis.LRange(ctx, offlineKey(addr))
	if err != nil {
		log.Error("relayserver: read offline queue failed", zap.Error(err))
		return
	}
	if len(values) == 0 {
		return
	}
	if err := s.redis.Del(ctx, offlineKey(addr)); err != nil {
		log.Error("relayserver: clear offline queue failed", zap.Error(err))
	}
	for _, v := range values {
		id := allocateID()
		frame := model.Frame{
			Type: model.FrameRequest,
			Request: &model.Request{ID: id, Verb: "PUT", Path: "/messages", Body: []byte(v)},
		}
		c.mu.Lock()
		err := c.ws.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(frame))
		c.mu.Unlock()
		if err != nil {
			log.Warn("relayserver: forward queued message failed", zap.Error(err))
			return
		}
	}
}

// Reachable reports whether number has at least one connected device
// (`GET /v1/devices/<number>`, §4.3's reconnect probe).
func (s *Server) Reachable(number string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr := range s.conns {
		if addr.Number == number {
			return true
		}
	}
	return false
}

func offlineKey(addr model.Address) string {
	return "relay:queue:" + addr.String()
}

func allocateID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		log.Fatal("relayserver: crypto/rand failed", zap.Error(err))
	}
	return binary.BigEndian.Uint64(b[:])
}
