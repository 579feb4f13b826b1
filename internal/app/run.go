package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/device"
	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
	"github.com/flame-avsim/avsim-monitor/internal/ui"
)

// shutdownTimeout tope para cerrar grabaciones y conexiones al salir
const shutdownTimeout = 5 * time.Second

// RunHeadless corre el monitor sin ventana hasta que ctx se cancela. Si
// scenarioFile no está vacío lo carga y lo reproduce de inmediato.
func RunHeadless(ctx context.Context, cfg *config.Config, scenarioFile string) error {
	logger := slog.Default().With("component", "app")
	logger.Info("🚀 [App] Modo headless", "app_id", cfg.AppID)

	m := New(cfg)
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.shutdown()

	for _, err := range m.ConnectCameras(ctx) {
		logger.Warn("⚠️  [App] Cámara no conectada", "err", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		drainSamples(ctx, m.Devices.Samples(), logger)
	}()

	if scenarioFile != "" {
		if err := m.Runner.LoadFile(m.scenarioPath(scenarioFile)); err != nil {
			return fmt.Errorf("error cargando escenario: %w", err)
		}
		if err := m.Runner.Start(); err != nil {
			return err
		}
	}

	logger.Info("⏹️  [App] Ctrl+C para detener")
	<-ctx.Done()
	<-done
	return nil
}

// RunWithUI abre la ventana del monitor. Cerrar la ventana o cancelar
// ctx detiene todo.
func RunWithUI(ctx context.Context, cfg *config.Config, scenarioFile string) error {
	slog.Default().Info("🎮 [App] Modo UI", "app_id", cfg.AppID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(cfg)
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.shutdown()

	if scenarioFile != "" {
		// el resultado lo muestra la ventana
		_ = m.Runner.LoadFile(m.scenarioPath(scenarioFile))
	}

	return ui.Run(ctx, ui.Deps{
		Config:   cfg,
		Bus:      m.Bus,
		Runner:   m.Runner,
		Sessions: m.Sessions,
		Samples:  m.Devices.Samples(),
		Cameras:  m,
	})
}

func (m *Monitor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		m.logger.Warn("⚠️  [App] Errores al detener", "err", err)
	}
}

// drainSamples consume la cola de muestras cuando no hay ventana. Los
// frames ya los graban los sinks; acá solo se loguean los cambios de
// estado del eye-tracker.
func drainSamples(ctx context.Context, samples <-chan device.Sample, logger *slog.Logger) {
	var last eventbus.EyetrackerStatusData
	seen := false
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-samples:
			status, ok := s.Data.(eventbus.EyetrackerStatusData)
			if !ok {
				continue
			}
			if !seen || status.Recording != last.Recording || status.BatteryState != last.BatteryState {
				logger.Info("👁️  [App] Eye-tracker",
					"recording", status.Recording,
					"battery", status.BatteryLevel,
					"battery_state", status.BatteryState,
					"free_gb", status.FreeStorageGB,
				)
			}
			last, seen = status, true
		}
	}
}
