package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/edgewire/internal/config"
	"github.com/danmuck/edgewire/internal/logging"
	"github.com/danmuck/edgewire/internal/service"
)

func main() {
	path := flag.String("config", "edgewire.toml", "path to the wirectl config file")
	initFlag := flag.Bool("init", false, "write config and protocol templates next to -config and exit")
	force := flag.Bool("force", false, "overwrite existing files with -init")
	flag.Parse()

	logging.ConfigureRuntime()

	if *initFlag {
		if err := writeTemplates(*path, *force); err != nil {
			fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadServerConfig(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
		os.Exit(1)
	}
	svc, err := service.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
		os.Exit(1)
	}
}

func writeTemplates(path string, force bool) error {
	if err := config.WriteTemplate(path, "server", force); err != nil {
		return err
	}
	protocol := filepath.Join(filepath.Dir(path), config.DefaultServerConfig().ProtocolPath)
	return config.WriteTemplate(protocol, "protocol", force)
}
