package service

import (
	"context"
	"net"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/edgewire/internal/config"
	"github.com/danmuck/edgewire/internal/observability"
	"github.com/danmuck/edgewire/internal/protocol/schema"
	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/danmuck/edgewire/internal/server"
	"github.com/danmuck/edgewire/internal/sink"
	"github.com/danmuck/edgewire/internal/transport"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service wires one compiled protocol to the TCP listener, the admin
// server and the configured sinks.
type Service struct {
	cfg      config.ServerConfig
	schema   *schema.Schema
	registry *transport.Registry
	tcp      *transport.Server
	admin    *server.Admin
	nc       *nats.Conn
}

func New(cfg config.ServerConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	proto, err := schema.Load(cfg.ProtocolPath)
	if err != nil {
		return nil, err
	}
	return NewWithSchema(cfg, proto)
}

// NewWithSchema builds the service around an already compiled protocol.
func NewWithSchema(cfg config.ServerConfig, proto *schema.Schema) (*Service, error) {
	s := &Service{cfg: cfg, schema: proto}

	var sinks sink.Fanout
	if cfg.LogDecoded {
		sinks = append(sinks, sink.NewLog(observability.Component("decoded"), zerolog.InfoLevel))
	}
	if cfg.NATS.Enabled {
		ns, nc, err := sink.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		s.nc = nc
		sinks = append(sinks, ns)
	}
	emit := sink.Handler(sinks)

	streamCfg := cfg.Stream
	streamCfg.Observer = observability.NewStreamObserver()
	adapter := stream.NewAdapter(proto.Root(), func(m stream.Message) {
		emit(m)
		if cfg.Echo {
			if err := s.registry.Send(m.Conn.ID, m.Value); err != nil {
				log.Warn().Err(err).Str("conn", m.Conn.ID).Msg("service echo failed")
			}
		}
	}, streamCfg)
	s.registry = transport.NewRegistry(adapter)
	s.tcp = transport.NewServer(cfg.TCP, s.registry)
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" {
		ws := transport.NewWSHandler(cfg.WS, s.registry)
		s.admin = server.NewAdmin(server.AdminConfig{
			Name:        cfg.Name,
			Addr:        addr,
			CorsOrigins: cfg.CorsOrigins,
			Token:       cfg.AdminToken,
		}, s.registry, ws)
	}
	return s, nil
}

func (s *Service) Schema() *schema.Schema {
	return s.schema
}

func (s *Service) Registry() *transport.Registry {
	return s.registry
}

// Admin is nil when no admin address is configured.
func (s *Service) Admin() *server.Admin {
	return s.admin
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := s.tcp.Listen()
	if err != nil {
		s.close()
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the TCP accept loop on ln and, when configured, the admin
// server. Either failing stops both.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer s.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info().Fields(s.cfg.Summary()).Str("root", s.schema.RootName()).Msg("edgewire starting")

	adminErr := make(chan error, 1)
	if s.admin != nil {
		go func() { adminErr <- s.admin.Run(ctx) }()
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.tcp.Serve(ctx, ln) }()

	select {
	case err := <-serveErr:
		cancel()
		if s.admin != nil {
			if aerr := <-adminErr; err == nil {
				err = aerr
			}
		}
		return err
	case err := <-adminErr:
		cancel()
		serr := <-serveErr
		if err != nil {
			return err
		}
		return serr
	}
}

func (s *Service) close() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
		s.nc = nil
	}
}
