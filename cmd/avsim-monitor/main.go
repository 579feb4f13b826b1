package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/flame-avsim/avsim-monitor/internal/app"
	"github.com/flame-avsim/avsim-monitor/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "archivo de configuración")
	headless := flag.Bool("headless", false, "correr sin ventana")
	scenarioFile := flag.String("scenario", "", "escenario a cargar al inicio (en headless además se reproduce)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	usingDefaults := false
	if err != nil {
		// sin archivo se sigue con los valores por defecto; un archivo
		// inválido es fatal
		if !errors.Is(err, fs.ErrNotExist) {
			config.SetupLogging("info").Error("❌ Config inválida", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = config.DefaultResolved()
		usingDefaults = true
	}
	logger := config.SetupLogging(cfg.LogLevel)
	if usingDefaults {
		logger.Warn("⚠️  Config no encontrada, usando valores por defecto", "path", *configPath)
	}
	logger.Info("=== AVSIM MONITOR ===", "app_id", cfg.AppID, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *headless {
		err = app.RunHeadless(ctx, cfg, *scenarioFile)
	} else {
		err = app.RunWithUI(ctx, cfg, *scenarioFile)
	}
	if err != nil {
		logger.Error("❌ Monitor terminó con error", "err", err)
		os.Exit(1)
	}
	logger.Info("¡Hasta luego!")
}
