package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/edgewire/internal/protocol/schema"
	"github.com/danmuck/edgewire/internal/testutil/testlog"
	"github.com/danmuck/edgewire/internal/transport"
)

func TestDefaultServerConfigIsValid(t *testing.T) {
	testlog.Start(t)
	if err := DefaultServerConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestServerConfigValidate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		mutate func(*ServerConfig)
		want   error
	}{
		{"name", func(c *ServerConfig) { c.Name = " " }, ErrMissingName},
		{"protocol", func(c *ServerConfig) { c.ProtocolPath = "" }, ErrMissingProtocol},
		{"listen", func(c *ServerConfig) { c.TCP.ListenAddr = "" }, ErrMissingListen},
		{"read buffer", func(c *ServerConfig) { c.TCP.ReadBufferSize = 0 }, ErrInvalidLimit},
		{"timeouts", func(c *ServerConfig) { c.TCP.WriteTimeout = -1 }, ErrInvalidLimit},
		{"max buffer", func(c *ServerConfig) { c.Stream.MaxBufferBytes = -1 }, ErrInvalidLimit},
		{"ws message", func(c *ServerConfig) { c.WS.MaxMessageBytes = 0 }, ErrInvalidLimit},
		{"tls", func(c *ServerConfig) { c.TCP.TLS.Enabled = true }, transport.ErrTLSCertFileRequired},
		{"nats", func(c *ServerConfig) { c.NATS = NATSConfig{Enabled: true} }, ErrMissingNATSURL},
	}
	for _, tc := range cases {
		cfg := DefaultServerConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestProtocolTemplateCompiles(t *testing.T) {
	testlog.Start(t)
	raw, err := Template("protocol")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	s, err := schema.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.RootName() != "message" {
		t.Fatalf("root got %q", s.RootName())
	}
}

func TestTemplateUnknownKind(t *testing.T) {
	testlog.Start(t)
	if _, err := Template("client"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestWriteTemplateRespectsOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "edgewire.toml")
	if err := WriteTemplate(path, "server", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTemplate(path, "server", false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected exists error, got %v", err)
	}
	if err := WriteTemplate(path, "server", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `listen_addr = ":7400"`) {
		t.Fatalf("unexpected template content")
	}
}
