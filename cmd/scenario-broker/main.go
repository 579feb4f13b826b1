// scenario-broker lanza y termina procesos locales a pedido de los
// escenarios, por las MAPI .../process/mapi_launch y mapi_terminate.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/dispatch"
	"github.com/flame-avsim/avsim-monitor/internal/mqtt"
	"github.com/flame-avsim/avsim-monitor/internal/process"
)

func main() {
	configPath := flag.String("config", "config.yaml", "archivo de configuración")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flagSet("config") {
			config.SetupLogging("info").Error("❌ Config inválida", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = config.DefaultResolved()
	}
	logger := config.SetupLogging(cfg.LogLevel).With("component", "broker")

	mqttCfg := cfg.MQTT
	mqttCfg.Enabled = true
	if cfg.Broker.ClientID != "" {
		mqttCfg.ClientID = cfg.Broker.ClientID
	}

	table := dispatch.NewTable(dispatch.WithLogger(logger))
	procs := process.NewManager(cfg.Broker.Shell)
	procs.Register(table, cfg.MQTT.Topics.ProcessLaunch, cfg.MQTT.Topics.ProcessTerminate)

	client := mqtt.NewClient(mqttCfg, table, nil)
	if err := client.Start(); err != nil {
		logger.Error("❌ [Broker] No se pudo iniciar MQTT", "err", err)
		os.Exit(1)
	}
	logger.Info("🚀 [Broker] Escuchando", "launch", cfg.MQTT.Topics.ProcessLaunch, "terminate", cfg.MQTT.Topics.ProcessTerminate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("🛑 [Broker] Deteniendo", "processes", len(procs.List()))
	client.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	procs.Shutdown(shutdownCtx)
}

// flagSet true si el flag se pasó explícitamente
func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
