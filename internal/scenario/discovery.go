package scenario

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioInfo contiene información de un escenario disponible
type ScenarioInfo struct {
	ID       string // "driving_nback", "calibracion"
	Name     string // "Driving Nback (JSON)"
	Format   string // "json" o "yaml"
	FilePath string
}

// DiscoverScenarios busca archivos .json/.yaml/.yml en un directorio,
// ordenados por nombre de archivo
func DiscoverScenarios(dir string) []ScenarioInfo {
	scenarios := make([]ScenarioInfo, 0)
	if dir == "" {
		return scenarios
	}

	// Verificar si el directorio existe
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return scenarios
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("⚠️  Error leyendo directorio de escenarios", "dir", dir, "err", err)
		return scenarios
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Name()))
		var format string
		switch ext {
		case ".json":
			format = "json"
		case ".yaml", ".yml":
			format = "yaml"
		default:
			continue
		}

		baseName := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		name := strings.ReplaceAll(baseName, "_", " ")
		if name != "" {
			name = strings.ToUpper(name[:1]) + name[1:]
		}

		scenarios = append(scenarios, ScenarioInfo{
			ID:       baseName,
			Name:     name + " (" + strings.ToUpper(format) + ")",
			Format:   format,
			FilePath: filepath.Join(dir, file.Name()),
		})
	}

	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].FilePath < scenarios[j].FilePath
	})
	return scenarios
}
