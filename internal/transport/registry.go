package transport

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/edgewire/internal/observability"
	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/rs/zerolog/log"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

var ErrPeerClosed = errors.New("transport: connection closed")

// peer is the write side of one live connection. Writes are serialized so
// that each encoded value lands on the wire as one unit.
type peer struct {
	info  stream.ConnInfo
	mu    sync.Mutex
	write func([]byte) error
	close func() error
}

// Registry tracks live connections across transports so replies can be
// routed by connection id. Inbound bytes go through the shared Adapter.
type Registry struct {
	adapter *stream.Adapter

	mu    sync.Mutex
	peers map[string]*peer
}

func NewRegistry(adapter *stream.Adapter) *Registry {
	return &Registry{
		adapter: adapter,
		peers:   make(map[string]*peer),
	}
}

func (r *Registry) Adapter() *stream.Adapter {
	return r.adapter
}

func (r *Registry) open(info stream.ConnInfo, write func([]byte) error, closeFn func() error) error {
	if err := r.adapter.Open(info); err != nil {
		return err
	}
	r.mu.Lock()
	r.peers[info.ID] = &peer{info: info, write: write, close: closeFn}
	active := len(r.peers)
	r.mu.Unlock()
	observability.RecordConnOpened(info.Transport)
	log.Info().Str("conn", info.ID).Str("remote", info.RemoteAddr).Str("transport", info.Transport).Int("active", active).Msg("transport connected")
	return nil
}

func (r *Registry) receive(id string, chunk []byte) error {
	return r.adapter.Receive(id, chunk)
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	p, ok := r.peers[id]
	delete(r.peers, id)
	active := len(r.peers)
	r.mu.Unlock()
	r.adapter.Close(id)
	if !ok {
		return
	}
	p.mu.Lock()
	p.write = nil
	p.mu.Unlock()
	observability.RecordConnClosed(p.info.Transport)
	log.Info().Str("conn", id).Str("transport", p.info.Transport).Int("active", active).Msg("transport disconnected")
}

// Send encodes v with the shared codec and writes it to connection id.
func (r *Registry) Send(id string, v any) error {
	r.mu.Lock()
	p, ok := r.peers[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", stream.ErrUnknownConn, id)
	}
	raw, err := r.adapter.Encode(v)
	if err != nil {
		return err
	}
	return p.send(raw)
}

// send writes raw unless the connection has been released.
func (p *peer) send(raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.write == nil {
		return fmt.Errorf("%w: %s", ErrPeerClosed, p.info.ID)
	}
	return p.write(raw)
}

// Disconnect closes connection id. Its read loop observes the close and
// releases the decode state.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	p, ok := r.peers[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", stream.ErrUnknownConn, id)
	}
	return p.close()
}

// CloseAll closes every tracked connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	peers := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()
	for _, p := range peers {
		_ = p.close()
	}
}

// IDs lists open connection ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
