package relayserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"e2ereceiver/internal/log"
	"e2ereceiver/internal/model"

	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Router builds the relay's HTTP surface (§6): the websocket upgrade
// endpoint, the two side-channel GET routes internal/relayclient calls,
// and a PUT /messages route a sender uses to hand the relay an
// already-encrypted envelope for a destination device.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/websocket", s.handleUpgrade).Methods(http.MethodGet)
	r.HandleFunc("/v1/devices/{number}", s.handleProbeDevice).Methods(http.MethodGet)
	r.HandleFunc("/attachments/{id}", s.handleFetchAttachment).Methods(http.MethodGet)
	r.HandleFunc("/attachments/{id}", s.handlePutAttachment).Methods(http.MethodPut)
	r.HandleFunc("/messages", s.handlePutMessage).Methods(http.MethodPut)
	return r
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	deviceID, err := strconv.ParseUint(r.URL.Query().Get("device"), 10, 32)
	if err != nil || number == "" {
		http.Error(w, "number and device query params are required", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("relayserver: websocket upgrade failed", zap.Error(err))
		return
	}

	addr := model.NewAddress(number, uint32(deviceID))
	log.Info("relayserver: device connected", zap.String("address", addr.String()))
	s.HandleWebSocket(ws, addr)
}

func (s *Server) handleProbeDevice(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	if !s.Reachable(number) {
		http.Error(w, "not connected", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFetchAttachment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, err := s.redis.Get(r.Context(), attachmentKey(id))
	if err != nil {
		http.Error(w, "attachment not found", http.StatusNotFound)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		http.Error(w, "corrupt attachment", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(raw)
}

// handlePutAttachment is dev/test tooling: it is not part of §6's contract,
// which only specifies how the receiver fetches attachments, but something
// has to put them there for a local end-to-end run.
func (s *Server) handlePutAttachment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	encoded := base64.StdEncoding.EncodeToString(buf)
	if err := s.redis.Set(r.Context(), attachmentKey(id), encoded, 0); err != nil {
		http.Error(w, "store attachment failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type putMessageRequest struct {
	Number   string `json:"number"`
	DeviceID uint32 `json:"deviceId"`
	Body     string `json:"body"` // base64 of the signaling-key-encrypted envelope
}

func (s *Server) handlePutMessage(w http.ResponseWriter, r *http.Request) {
	var req putMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	body, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		http.Error(w, "body must be base64", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	addr := model.NewAddress(req.Number, req.DeviceID)
	if err := s.Push(ctx, addr, body); err != nil {
		log.Error("relayserver: push failed", zap.String("address", addr.String()), zap.Error(err))
		http.Error(w, "delivery failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func attachmentKey(id string) string {
	return "relay:attachment:" + id
}
