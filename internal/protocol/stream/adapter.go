package stream

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgewire/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownConn   = errors.New("stream: unknown connection")
	ErrDuplicateConn = errors.New("stream: connection already open")
	ErrInvalidConnID = errors.New("stream: invalid connection id")
)

// ConnInfo identifies the origin of decoded messages.
type ConnInfo struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remote_addr"`
	Transport  string `json:"transport"`
}

// Message is one fully decoded value and the connection it arrived on.
type Message struct {
	Conn       ConnInfo
	Value      any
	ReceivedAt time.Time
}

// Handler receives decoded messages in arrival order per connection. It is
// called from the transport's read path with the connection's decoder
// locked. It may call Connections, Encode or Send. It must not call Receive
// or Close for the same connection.
type Handler func(Message)

// ConnStatus is a point-in-time view of one open connection.
type ConnStatus struct {
	ConnInfo
	OpenedAt time.Time `json:"opened_at"`
	Pending  int       `json:"pending_bytes"`
	Messages uint64    `json:"messages"`
}

type connState struct {
	info     ConnInfo
	decoder  *Decoder
	openedAt time.Time
	messages atomic.Uint64
}

// Adapter binds one shared codec to many connections, each with its own
// decoder.
type Adapter struct {
	codec   codec.Codec
	cfg     Config
	handler Handler
	encoder *Encoder
	now     func() time.Time

	mu    sync.RWMutex
	conns map[string]*connState
}

func NewAdapter(c codec.Codec, handler Handler, cfg Config) *Adapter {
	if handler == nil {
		handler = func(Message) {}
	}
	return &Adapter{
		codec:   c,
		cfg:     cfg.WithDefaults(),
		handler: handler,
		encoder: NewEncoder(c),
		now:     time.Now,
		conns:   make(map[string]*connState),
	}
}

// Open registers a connection and creates its cumulative buffer.
func (a *Adapter) Open(info ConnInfo) error {
	id := strings.TrimSpace(info.ID)
	if id == "" {
		return ErrInvalidConnID
	}
	info.ID = id
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.conns[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateConn, id)
	}
	a.conns[id] = &connState{
		info:     info,
		decoder:  NewDecoder(a.codec, a.cfg),
		openedAt: a.now(),
	}
	log.Debug().Str("conn", id).Str("remote", info.RemoteAddr).Str("transport", info.Transport).Msg("stream.Adapter.Open")
	return nil
}

// Receive feeds one inbound chunk for connection id. A returned error other
// than ErrUnknownConn is connection-fatal: the connection's decode state is
// dropped and the transport should close it.
func (a *Adapter) Receive(id string, chunk []byte) error {
	a.mu.RLock()
	state, ok := a.conns[id]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConn, id)
	}
	err := state.decoder.Feed(chunk, func(v any) {
		state.messages.Add(1)
		a.handler(Message{Conn: state.info, Value: v, ReceivedAt: a.now()})
	})
	if err != nil {
		log.Warn().Err(err).Str("conn", id).Msg("stream.Adapter.Receive decode failed")
		a.Close(id)
		return err
	}
	return nil
}

// Close drops the connection's decode state. Pending bytes are discarded.
func (a *Adapter) Close(id string) {
	a.mu.Lock()
	state, ok := a.conns[id]
	delete(a.conns, id)
	a.mu.Unlock()
	if !ok {
		return
	}
	pending := state.decoder.Pending()
	state.decoder.Close()
	log.Debug().Str("conn", id).Int("pending", pending).Msg("stream.Adapter.Close")
}

// Encode returns the wire bytes for v.
func (a *Adapter) Encode(v any) ([]byte, error) {
	return a.encoder.Encode(v)
}

// Send encodes v and writes it to w in one Write.
func (a *Adapter) Send(w io.Writer, v any) error {
	return a.encoder.WriteTo(w, v)
}

// Connections returns open connections sorted by id.
func (a *Adapter) Connections() []ConnStatus {
	a.mu.RLock()
	states := make([]*connState, 0, len(a.conns))
	for _, state := range a.conns {
		states = append(states, state)
	}
	a.mu.RUnlock()

	out := make([]ConnStatus, 0, len(states))
	for _, state := range states {
		out = append(out, ConnStatus{
			ConnInfo: state.info,
			OpenedAt: state.openedAt,
			Pending:  state.decoder.Pending(),
			Messages: state.messages.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
