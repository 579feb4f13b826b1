package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/dispatch"
)

// handlerTimeout tope para las acciones remotas que tocan dispositivos
const handlerTimeout = 10 * time.Second

// ErrMissingField el payload no trae un campo obligatorio
var ErrMissingField = errors.New("campo obligatorio ausente")

// registerHandlers registra la MAPI de control remoto del monitor
func (m *Monitor) registerHandlers() {
	topics := m.cfg.MQTT.Topics
	register := func(key string, h dispatch.Handler) {
		if key != "" {
			m.Table.Register(key, h)
		}
	}

	register(topics.ScenarioLoad, m.handleScenarioLoad)
	register(topics.ScenarioStart, func(map[string]any) error {
		if err := m.Runner.Start(); err != nil {
			return err
		}
		m.notify("info", "MAPI: escenario iniciado")
		return nil
	})
	register(topics.ScenarioPause, func(map[string]any) error {
		m.Runner.Pause()
		m.notify("info", "MAPI: escenario pausado")
		return nil
	})
	register(topics.ScenarioStop, func(map[string]any) error {
		m.Runner.Stop()
		m.notify("info", "MAPI: escenario detenido")
		return nil
	})
	register(topics.RecordingStart, m.handleRecordingStart)
	register(topics.RecordingStop, func(map[string]any) error {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		return m.Sessions.StopRecording(ctx)
	})
}

// handleScenarioLoad {"file": "driving_nback.json"}
func (m *Monitor) handleScenarioLoad(payload map[string]any) error {
	file := dispatch.String(payload, "file")
	if file == "" {
		return fmt.Errorf("%w: file", ErrMissingField)
	}
	path := m.scenarioPath(file)
	if err := m.Runner.LoadFile(path); err != nil {
		m.notify("error", "MAPI: error cargando %s: %v", file, err)
		return err
	}
	m.notify("success", "MAPI: escenario %s cargado", file)
	return nil
}

// handleRecordingStart {"subject": "S01"} crea el sujeto antes de grabar;
// sin subject graba en el sujeto actual
func (m *Monitor) handleRecordingStart(payload map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if subject := dispatch.String(payload, "subject"); subject != "" {
		if _, err := m.Sessions.NewSubject(ctx, subject); err != nil {
			return err
		}
	}
	return m.Sessions.StartRecording(ctx)
}

// scenarioPath resuelve rutas relativas contra el directorio de
// escenarios. Si el archivo existe tal cual (relativo al cwd) se usa así.
func (m *Monitor) scenarioPath(file string) string {
	if filepath.IsAbs(file) || m.cfg.Scenario.Directory == "" || fileExists(file) {
		return file
	}
	return filepath.Join(m.cfg.Scenario.Directory, file)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
