package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config is the TCP listener configuration.
type Config struct {
	ListenAddr string
	// ReadBufferSize is the size of each socket read handed to the decoder.
	ReadBufferSize int
	// ReadTimeout closes idle connections. Zero disables it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":7400",
		ReadBufferSize: 32 * 1024,
		ReadTimeout:    0,
		WriteTimeout:   15 * time.Second,
	}
}

// WithDefaults fills zero-valued sizes from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Server accepts TCP connections and feeds their bytes to the registry's
// adapter. Each connection gets a uuid and its own read goroutine.
type Server struct {
	cfg      Config
	registry *Registry

	wg sync.WaitGroup
}

func NewServer(cfg Config, registry *Registry) *Server {
	return &Server{cfg: cfg.WithDefaults(), registry: registry}
}

// Listen opens the configured listener, wrapped in TLS when enabled.
func (s *Server) Listen() (net.Listener, error) {
	if !s.cfg.TLS.Enabled {
		return net.Listen("tcp", s.cfg.ListenAddr)
	}
	tlsCfg, err := s.cfg.TLS.ServerConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Bool("tls", s.cfg.TLS.Enabled).Msg("transport.Server listening")
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on an existing listener. It returns nil once
// ctx is cancelled and every connection handler has exited. Any other
// accept error closes the live connections before it is returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		_ = ln.Close()
		s.registry.CloseAll()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			closed := ctx.Err() != nil || errors.Is(err, net.ErrClosed)
			cancel()
			<-stopped
			s.wg.Wait()
			if closed {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	id := uuid.NewString()
	info := stream.ConnInfo{ID: id, RemoteAddr: conn.RemoteAddr().String(), Transport: TransportTCP}
	write := func(p []byte) error {
		if s.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		n, err := conn.Write(p)
		if err == nil && n < len(p) {
			err = io.ErrShortWrite
		}
		return err
	}
	if err := s.registry.open(info, write, conn.Close); err != nil {
		log.Warn().Err(err).Str("remote", info.RemoteAddr).Msg("transport.Server open failed")
		return
	}
	defer s.registry.release(id)
	if ctx.Err() != nil {
		return
	}

	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			if rerr := s.registry.receive(id, buf[:n]); rerr != nil {
				log.Warn().Err(rerr).Str("conn", id).Msg("transport.Server closing connection")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Str("conn", id).Msg("transport.Server read ended")
			}
			return
		}
	}
}
