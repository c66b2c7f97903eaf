package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgewire/internal/config"
)

// wirectl config.toml key mapping to runtime settings.
type fileConfig struct {
	Name           string   `toml:"name"`
	Protocol       string   `toml:"protocol"`
	ListenAddr     string   `toml:"listen_addr"`
	AdminAddr      string   `toml:"admin_addr"`
	AdminToken     string   `toml:"admin_token"`
	CorsOrigins    []string `toml:"cors_origins"`
	ReadBufferSize int      `toml:"read_buffer_size"`
	ReadTimeout    string   `toml:"read_timeout"`
	WriteTimeout   string   `toml:"write_timeout"`
	MaxBufferBytes int      `toml:"max_buffer_bytes"`
	LogDecoded     bool     `toml:"log_decoded"`
	Echo           bool     `toml:"echo"`

	TLS struct {
		Enabled  bool   `toml:"enabled"`
		Mutual   bool   `toml:"mutual"`
		CertFile string `toml:"cert_file"`
		KeyFile  string `toml:"key_file"`
		CAFile   string `toml:"ca_file"`
	} `toml:"tls"`

	WS struct {
		MaxMessageBytes int64    `toml:"max_message_bytes"`
		ReadTimeout     string   `toml:"read_timeout"`
		WriteTimeout    string   `toml:"write_timeout"`
		AllowedOrigins  []string `toml:"allowed_origins"`
	} `toml:"ws"`

	NATS struct {
		Enabled       bool   `toml:"enabled"`
		URL           string `toml:"url"`
		SubjectPrefix string `toml:"subject_prefix"`
	} `toml:"nats"`
}

// loadServerConfig overlays the keys present in path onto the defaults.
// Relative protocol and TLS paths resolve against the config file's
// directory.
func loadServerConfig(path string) (config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.ServerConfig{}, fmt.Errorf("load wirectl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.ServerConfig{}, fmt.Errorf("load wirectl config: unknown key %q", undecoded[0].String())
	}
	dir := filepath.Dir(path)

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("protocol") {
		cfg.ProtocolPath = strings.TrimSpace(raw.Protocol)
	}
	cfg.ProtocolPath = resolvePath(dir, cfg.ProtocolPath)
	if meta.IsDefined("listen_addr") {
		cfg.TCP.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("read_buffer_size") {
		cfg.TCP.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("read_timeout") {
		if cfg.TCP.ReadTimeout, err = parseDuration("read_timeout", raw.ReadTimeout); err != nil {
			return config.ServerConfig{}, err
		}
	}
	if meta.IsDefined("write_timeout") {
		if cfg.TCP.WriteTimeout, err = parseDuration("write_timeout", raw.WriteTimeout); err != nil {
			return config.ServerConfig{}, err
		}
	}
	if meta.IsDefined("max_buffer_bytes") {
		cfg.Stream.MaxBufferBytes = raw.MaxBufferBytes
	}
	if meta.IsDefined("log_decoded") {
		cfg.LogDecoded = raw.LogDecoded
	}
	if meta.IsDefined("echo") {
		cfg.Echo = raw.Echo
	}

	if meta.IsDefined("tls", "enabled") {
		cfg.TCP.TLS.Enabled = raw.TLS.Enabled
	}
	if meta.IsDefined("tls", "mutual") {
		cfg.TCP.TLS.Mutual = raw.TLS.Mutual
	}
	if meta.IsDefined("tls", "cert_file") {
		cfg.TCP.TLS.CertFile = resolvePath(dir, strings.TrimSpace(raw.TLS.CertFile))
	}
	if meta.IsDefined("tls", "key_file") {
		cfg.TCP.TLS.KeyFile = resolvePath(dir, strings.TrimSpace(raw.TLS.KeyFile))
	}
	if meta.IsDefined("tls", "ca_file") {
		cfg.TCP.TLS.CAFile = resolvePath(dir, strings.TrimSpace(raw.TLS.CAFile))
	}

	if meta.IsDefined("ws", "max_message_bytes") {
		cfg.WS.MaxMessageBytes = raw.WS.MaxMessageBytes
	}
	if meta.IsDefined("ws", "read_timeout") {
		if cfg.WS.ReadTimeout, err = parseDuration("ws.read_timeout", raw.WS.ReadTimeout); err != nil {
			return config.ServerConfig{}, err
		}
	}
	if meta.IsDefined("ws", "write_timeout") {
		if cfg.WS.WriteTimeout, err = parseDuration("ws.write_timeout", raw.WS.WriteTimeout); err != nil {
			return config.ServerConfig{}, err
		}
	}
	if meta.IsDefined("ws", "allowed_origins") {
		cfg.WS.AllowedOrigins = normalizeList(raw.WS.AllowedOrigins)
	}

	if meta.IsDefined("nats", "enabled") {
		cfg.NATS.Enabled = raw.NATS.Enabled
	}
	if meta.IsDefined("nats", "url") {
		cfg.NATS.URL = strings.TrimSpace(raw.NATS.URL)
	}
	if meta.IsDefined("nats", "subject_prefix") {
		cfg.NATS.SubjectPrefix = strings.TrimSpace(raw.NATS.SubjectPrefix)
	}

	if err := cfg.Validate(); err != nil {
		return config.ServerConfig{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
