package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgewire/internal/config"
	"github.com/danmuck/edgewire/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edgewire.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServerConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
name = "edge-west"
protocol = "proto/chat.toml"
listen_addr = "127.0.0.1:7500"
admin_token = " t0ken "
write_timeout = "2s"
max_buffer_bytes = 4096
echo = true

[tls]
enabled = true
cert_file = "certs/server.pem"
key_file = "/etc/edgewire/server.key"

[ws]
read_timeout = "30s"
allowed_origins = [" https://console.example ", ""]

[nats]
enabled = true
url = "nats://broker:4222"
`)
	cfg, err := loadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dir := filepath.Dir(path)
	def := config.DefaultServerConfig()

	if cfg.Name != "edge-west" || cfg.TCP.ListenAddr != "127.0.0.1:7500" {
		t.Fatalf("unexpected identity %q %q", cfg.Name, cfg.TCP.ListenAddr)
	}
	if cfg.ProtocolPath != filepath.Join(dir, "proto", "chat.toml") {
		t.Fatalf("protocol path got %q", cfg.ProtocolPath)
	}
	if cfg.TCP.WriteTimeout != 2*time.Second || cfg.TCP.ReadBufferSize != def.TCP.ReadBufferSize {
		t.Fatalf("unexpected tcp config %+v", cfg.TCP)
	}
	if cfg.Stream.MaxBufferBytes != 4096 || !cfg.Echo || cfg.LogDecoded != def.LogDecoded {
		t.Fatalf("unexpected stream/flags %+v", cfg)
	}
	if cfg.TCP.TLS.CertFile != filepath.Join(dir, "certs", "server.pem") || cfg.TCP.TLS.KeyFile != "/etc/edgewire/server.key" {
		t.Fatalf("unexpected tls files %+v", cfg.TCP.TLS)
	}
	if cfg.WS.ReadTimeout != 30*time.Second || cfg.WS.MaxMessageBytes != def.WS.MaxMessageBytes {
		t.Fatalf("unexpected ws config %+v", cfg.WS)
	}
	if len(cfg.WS.AllowedOrigins) != 1 || cfg.WS.AllowedOrigins[0] != "https://console.example" {
		t.Fatalf("unexpected origins %v", cfg.WS.AllowedOrigins)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://broker:4222" || cfg.NATS.SubjectPrefix != def.NATS.SubjectPrefix {
		t.Fatalf("unexpected nats %+v", cfg.NATS)
	}
	if cfg.AdminAddr != def.AdminAddr || cfg.AdminToken != "t0ken" {
		t.Fatalf("admin got %q %q", cfg.AdminAddr, cfg.AdminToken)
	}
}

func TestLoadServerConfigTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "edgewire.toml")
	if err := writeTemplates(path, false); err != nil {
		t.Fatalf("write templates: %v", err)
	}
	cfg, err := loadServerConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if _, err := os.Stat(cfg.ProtocolPath); err != nil {
		t.Fatalf("protocol template missing: %v", err)
	}
	if err := writeTemplates(path, false); err == nil {
		t.Fatalf("expected existing template error")
	}
}

func TestLoadServerConfigErrors(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		body string
		want string
	}{
		{`write_timeout = "soon"`, "parse write_timeout"},
		{`listen = ":1"`, "unknown key"},
		{"name = ", "load wirectl config"},
	}
	for _, tc := range cases {
		_, err := loadServerConfig(writeConfig(t, tc.body))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("body %q: got %v want %q", tc.body, err, tc.want)
		}
	}

	_, err := loadServerConfig(writeConfig(t, "[nats]\nenabled = true\nurl = \"\"\n"))
	if !errors.Is(err, config.ErrMissingNATSURL) {
		t.Fatalf("expected ErrMissingNATSURL, got %v", err)
	}
}
