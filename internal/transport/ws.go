package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSConfig bounds WebSocket ingest.
type WSConfig struct {
	// MaxMessageBytes caps a single WebSocket message.
	MaxMessageBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	// AllowedOrigins lists accepted Origin headers. Empty keeps gorilla's
	// same-origin check; "*" accepts any origin.
	AllowedOrigins []string
}

func DefaultWSConfig() WSConfig {
	return WSConfig{
		MaxMessageBytes: 1024 * 1024,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

// WSHandler upgrades HTTP requests and treats every inbound WebSocket
// message as one chunk of the byte stream. Message boundaries carry no
// meaning to the decoder. Replies are written as binary messages.
type WSHandler struct {
	cfg      WSConfig
	registry *Registry
	upgrader websocket.Upgrader
}

func NewWSHandler(cfg WSConfig, registry *Registry) *WSHandler {
	def := DefaultWSConfig()
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	h := &WSHandler{
		cfg:      cfg,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("transport.WSHandler upgrade failed")
		return
	}
	defer conn.Close()

	id := strings.TrimSpace(r.URL.Query().Get("conn_id"))
	if id == "" {
		id = uuid.NewString()
	}
	info := stream.ConnInfo{ID: id, RemoteAddr: r.RemoteAddr, Transport: TransportWebSocket}
	write := func(p []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		return conn.WriteMessage(websocket.BinaryMessage, p)
	}
	if err := h.registry.open(info, write, conn.Close); err != nil {
		log.Warn().Err(err).Str("conn", id).Msg("transport.WSHandler open failed")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	defer h.registry.release(id)

	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	h.extendDeadline(conn)
	conn.SetPongHandler(func(string) error {
		h.extendDeadline(conn)
		return nil
	})

	for {
		_, chunk, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn", id).Msg("transport.WSHandler read ended")
			}
			return
		}
		h.extendDeadline(conn)
		if err := h.registry.receive(id, chunk); err != nil {
			log.Warn().Err(err).Str("conn", id).Msg("transport.WSHandler closing connection")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "decode failed"),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		}
	}
}

func (h *WSHandler) extendDeadline(conn *websocket.Conn) {
	if h.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	}
}
