package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/danmuck/edgewire/internal/transport"
)

var (
	ErrMissingName     = errors.New("config: name is required")
	ErrMissingProtocol = errors.New("config: protocol path is required")
	ErrMissingListen   = errors.New("config: listen addr is required")
	ErrMissingNATSURL  = errors.New("config: nats url is required when nats is enabled")
	ErrInvalidLimit    = errors.New("config: limits must be positive")
)

// ServerConfig is the full runtime configuration of one edgewire process.
type ServerConfig struct {
	Name string
	// ProtocolPath points at the TOML codec definition decoded on every
	// connection.
	ProtocolPath string

	TCP    transport.Config
	WS     transport.WSConfig
	Stream stream.Config

	// AdminAddr serves health, metrics, connections and /stream. Empty
	// disables the admin server and WebSocket ingest with it.
	AdminAddr   string
	CorsOrigins []string
	// AdminToken, when set, is required as a bearer token on mutating
	// admin routes.
	AdminToken string

	NATS NATSConfig
	// LogDecoded writes every decoded message to the log sink.
	LogDecoded bool
	// Echo re-encodes every decoded message back to its sender.
	Echo bool
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:         "edgewire",
		ProtocolPath: "protocol.toml",
		TCP:          transport.DefaultConfig(),
		WS:           transport.DefaultWSConfig(),
		Stream:       stream.DefaultConfig(),
		AdminAddr:    ":7410",
		CorsOrigins:  []string{"http://localhost:3000"},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "edgewire.decoded",
		},
		LogDecoded: true,
	}
}

func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(c.ProtocolPath) == "" {
		return ErrMissingProtocol
	}
	if strings.TrimSpace(c.TCP.ListenAddr) == "" {
		return ErrMissingListen
	}
	if c.TCP.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: tcp read_buffer_size=%d", ErrInvalidLimit, c.TCP.ReadBufferSize)
	}
	if c.TCP.ReadTimeout < 0 || c.TCP.WriteTimeout < 0 {
		return fmt.Errorf("%w: tcp timeouts", ErrInvalidLimit)
	}
	if c.Stream.MaxBufferBytes <= 0 {
		return fmt.Errorf("%w: stream max_buffer_bytes=%d", ErrInvalidLimit, c.Stream.MaxBufferBytes)
	}
	if c.WS.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: ws max_message_bytes=%d", ErrInvalidLimit, c.WS.MaxMessageBytes)
	}
	if err := c.TCP.TLS.Validate(); err != nil {
		return fmt.Errorf("config: tls: %w", err)
	}
	if c.NATS.Enabled && strings.TrimSpace(c.NATS.URL) == "" {
		return ErrMissingNATSURL
	}
	return nil
}

// Summary is logged at startup.
func (c ServerConfig) Summary() map[string]any {
	return map[string]any{
		"name":          c.Name,
		"protocol":      c.ProtocolPath,
		"listen":        c.TCP.ListenAddr,
		"tls":           c.TCP.TLS.Enabled,
		"mtls":          c.TCP.TLS.Mutual,
		"admin":         c.AdminAddr,
		"nats":          c.NATS.Enabled,
		"max_buffer":    c.Stream.MaxBufferBytes,
		"write_timeout": c.TCP.WriteTimeout.Round(time.Millisecond).String(),
	}
}
