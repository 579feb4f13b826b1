// cabinview sirve las páginas que corren en las pantallas de la cabina
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/webview"
)

func main() {
	configPath := flag.String("config", "config.yaml", "archivo de configuración")
	listen := flag.String("listen", "", "dirección de escucha (reemplaza webview.listen)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flagSet("config") {
			config.SetupLogging("info").Error("❌ Config inválida", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = config.DefaultResolved()
	}
	logger := config.SetupLogging(cfg.LogLevel)
	if *listen != "" {
		cfg.Webview.Listen = *listen
	}

	srv, err := webview.New(cfg.Webview, cfg.LogLevel)
	if err != nil {
		logger.Error("❌ [Webview] Templates inválidos", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("❌ [Webview] Servidor terminó con error", "err", err)
		os.Exit(1)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
