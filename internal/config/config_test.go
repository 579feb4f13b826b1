package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_ReplacesAppID(t *testing.T) {
	path := writeConfig(t, `
app_id: cabin_a
scenario:
  tick_interval: 0.1
mqtt:
  enabled: true
  broker: tcp://10.0.0.5:1883
  topics:
    status: "flame/avsim/{app_id}/status"
cameras:
  - id: 1
    kind: simulated
    fps: 10
  - id: 2
    kind: mjpeg
    url: http://cam2/stream
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.MQTT.Topics.Status != "flame/avsim/cabin_a/status" {
		t.Errorf("status topic = %q", cfg.MQTT.Topics.Status)
	}
	// Los topics no declarados conservan el valor por defecto, ya resuelto
	if cfg.MQTT.Topics.ScenarioStart != "flame/avsim/cabin_a/scenario/start" {
		t.Errorf("scenario start topic = %q", cfg.MQTT.Topics.ScenarioStart)
	}
	if cfg.MQTT.ClientID != "cabin_a" {
		t.Errorf("client id = %q", cfg.MQTT.ClientID)
	}
	if len(cfg.Cameras) != 2 || cfg.Cameras[1].Kind != "mjpeg" {
		t.Errorf("cameras = %+v", cfg.Cameras)
	}
	if got := cfg.Scenario.Interval(); got != 100*time.Millisecond {
		t.Errorf("Interval() = %v", got)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig("no_existe.yaml"); err == nil {
		t.Error("Expected error for missing file, got nil")
	}

	cases := map[string]string{
		"yaml inválido":      "this: is: invalid: yaml: [",
		"tick no positivo":   "scenario:\n  tick_interval: 0\n",
		"tick no múltiplo":   "scenario:\n  tick_interval: 0.15\n",
		"broker vacío":       "mqtt:\n  enabled: true\n  broker: \"\"\n",
		"cámaras duplicadas": "cameras:\n  - id: 1\n  - id: 1\n",
		"qos fuera de rango": "mqtt:\n  qos: 3\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, content)); err == nil {
				t.Errorf("Expected error, got nil")
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AVSIM_MQTT_BROKER", "tcp://override:1883")
	t.Setenv("AVSIM_APP_ID", "from_env")
	t.Setenv("AVSIM_EYETRACKER_ENABLED", "true")

	cfg, err := LoadConfig(writeConfig(t, "app_id: from_file\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.MQTT.Broker != "tcp://override:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
	if cfg.AppID != "from_env" {
		t.Errorf("app id = %q", cfg.AppID)
	}
	if !strings.Contains(cfg.MQTT.Topics.Status, "from_env") {
		t.Errorf("status topic not resolved with env app id: %q", cfg.MQTT.Topics.Status)
	}
	if !cfg.Eyetracker.Enabled {
		t.Error("eyetracker should be enabled from env")
	}
}

func TestDefaultResolved(t *testing.T) {
	cfg := DefaultResolved()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if strings.Contains(cfg.MQTT.Topics.Status, "{app_id}") {
		t.Errorf("placeholder not replaced: %q", cfg.MQTT.Topics.Status)
	}
}

func TestDefaultResolved_EnvOverrides(t *testing.T) {
	t.Setenv("AVSIM_MQTT_BROKER", "tcp://10.0.0.9:1883")
	t.Setenv("AVSIM_APP_ID", "cabin_b")

	cfg := DefaultResolved()
	if cfg.MQTT.Broker != "tcp://10.0.0.9:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Topics.Status != "flame/avsim/cabin_b/status" {
		t.Errorf("status topic = %q", cfg.MQTT.Topics.Status)
	}
}

func TestValidate_TickInterval(t *testing.T) {
	cases := map[float64]bool{0.1: true, 0.2: true, 0.3: true, 1: true, 0.15: false, 0.05: false, 0.25: false}
	for interval, ok := range cases {
		cfg := DefaultResolved()
		cfg.Scenario.TickInterval = interval
		if err := cfg.Validate(); (err == nil) != ok {
			t.Errorf("tick_interval %v: err = %v", interval, err)
		}
	}
}
