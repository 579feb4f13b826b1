package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config es la estructura principal de configuración
type Config struct {
	AppID      string           `yaml:"app_id"`
	LogLevel   string           `yaml:"log_level"`
	Scenario   ScenarioConfig   `yaml:"scenario"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Broker     BrokerConfig     `yaml:"broker"`
	Cameras    []CameraConfig   `yaml:"cameras"`
	Eyetracker EyetrackerConfig `yaml:"eyetracker"`
	Recording  RecordingConfig  `yaml:"recording"`
	Webview    WebviewConfig    `yaml:"webview"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	UI         UIConfig         `yaml:"ui"`
}

// ScenarioConfig configura el reproductor de escenarios
type ScenarioConfig struct {
	TickInterval float64 `yaml:"tick_interval"` // segundos
	Directory    string  `yaml:"directory"`
	InitialFile  string  `yaml:"initial_file"`
}

// Interval retorna el intervalo de tick como time.Duration
func (s ScenarioConfig) Interval() time.Duration {
	return time.Duration(s.TickInterval * float64(time.Second))
}

// MQTTConfig configuración MQTT
type MQTTConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Broker     string           `yaml:"broker"`
	ClientID   string           `yaml:"client_id"`
	Username   string           `yaml:"username"`
	Password   string           `yaml:"password"`
	QoS        byte             `yaml:"qos"`
	Retain     bool             `yaml:"retain"`
	KeepAlive  int              `yaml:"keepalive"`
	QueueSize  int              `yaml:"queue_size"`
	IgnoreSelf bool             `yaml:"ignore_self"`
	Topics     MQTTTopicsConfig `yaml:"topics"`
}

// MQTTTopicsConfig topics MAPI del monitor
type MQTTTopicsConfig struct {
	Status           string `yaml:"status"`
	ScenarioLoad     string `yaml:"scenario_load"`
	ScenarioStart    string `yaml:"scenario_start"`
	ScenarioPause    string `yaml:"scenario_pause"`
	ScenarioStop     string `yaml:"scenario_stop"`
	RecordingStart   string `yaml:"recording_start"`
	RecordingStop    string `yaml:"recording_stop"`
	ProcessLaunch    string `yaml:"process_launch"`
	ProcessTerminate string `yaml:"process_terminate"`
}

// RabbitMQConfig configuración del espejo AMQP
type RabbitMQConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	VHost        string `yaml:"vhost"`
	Exchange     string `yaml:"exchange"`
	ExchangeType string `yaml:"exchange_type"`
}

// BrokerConfig configuración del broker de procesos
type BrokerConfig struct {
	ClientID string `yaml:"client_id"`
	Shell    string `yaml:"shell"`
}

// CameraConfig describe un dispositivo de captura
type CameraConfig struct {
	ID     int     `yaml:"id"`
	Kind   string  `yaml:"kind"` // "simulated", "mjpeg"
	Name   string  `yaml:"name"`
	URL    string  `yaml:"url"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
}

// EyetrackerConfig configuración del eye-tracker Neon
type EyetrackerConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Address      string  `yaml:"address"` // host:puerto
	PollInterval float64 `yaml:"poll_interval"`
	Timeout      float64 `yaml:"timeout"`
}

// RecordingConfig configura dónde se guardan las sesiones
type RecordingConfig struct {
	Root string `yaml:"root"`
}

// WebviewConfig configuración del front-end de cabina
type WebviewConfig struct {
	Listen        string `yaml:"listen"`
	Title         string `yaml:"title"`
	Company       string `yaml:"company"`
	Version       string `yaml:"version"`
	Host          string `yaml:"host"`
	Port          string `yaml:"port"`
	BrokerIP      string `yaml:"mqtt_broker_ip"`
	BrokerWSPort  int    `yaml:"mqtt_broker_wsport"`
	AllowedOrigin string `yaml:"allowed_origin"`
}

// MetricsConfig expone /metrics desde el monitor
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type UIConfig struct {
	Window WindowConfig `yaml:"window"`
	FPS    int          `yaml:"fps"`
}

type WindowConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

// LoadConfig carga la configuración desde un archivo YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error leyendo config: %w", err)
	}

	return Parse(data)
}

// Parse decodifica YAML sobre los valores por defecto
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parseando YAML: %w", err)
	}

	applyEnvOverrides(config)
	replaceAppIDPlaceholders(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate verifica los valores que el resto del sistema asume
func (c *Config) Validate() error {
	if c.AppID == "" {
		return fmt.Errorf("config: app_id vacío")
	}
	if c.Scenario.TickInterval <= 0 {
		return fmt.Errorf("config: scenario.tick_interval debe ser positivo (%v)", c.Scenario.TickInterval)
	}
	// los buckets son de 0.1s; otro paso deja buckets sin consultar
	if steps := c.Scenario.TickInterval * 10; math.Abs(steps-math.Round(steps)) > 1e-6 {
		return fmt.Errorf("config: scenario.tick_interval debe ser múltiplo de 0.1s (%v)", c.Scenario.TickInterval)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker vacío con mqtt habilitado")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos inválido (%d)", c.MQTT.QoS)
	}

	seen := make(map[int]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if seen[cam.ID] {
			return fmt.Errorf("config: cámara duplicada id=%d", cam.ID)
		}
		seen[cam.ID] = true
	}
	return nil
}

// replaceAppIDPlaceholders reemplaza {app_id} en topics y título
func replaceAppIDPlaceholders(config *Config) {
	replace := func(s *string) {
		*s = strings.ReplaceAll(*s, "{app_id}", config.AppID)
	}

	replace(&config.UI.Window.Title)
	replace(&config.MQTT.ClientID)
	replace(&config.MQTT.Topics.Status)
	replace(&config.MQTT.Topics.ScenarioLoad)
	replace(&config.MQTT.Topics.ScenarioStart)
	replace(&config.MQTT.Topics.ScenarioPause)
	replace(&config.MQTT.Topics.ScenarioStop)
	replace(&config.MQTT.Topics.RecordingStart)
	replace(&config.MQTT.Topics.RecordingStop)
	replace(&config.MQTT.Topics.ProcessLaunch)
	replace(&config.MQTT.Topics.ProcessTerminate)
}

// Default devuelve una configuración por defecto si no se puede cargar el archivo
func Default() *Config {
	return &Config{
		AppID:    "avsim_monitor",
		LogLevel: "info",
		Scenario: ScenarioConfig{
			TickInterval: 0.1,
			Directory:    "scenarios",
		},
		MQTT: MQTTConfig{
			Enabled:    true,
			Broker:     "tcp://localhost:1883",
			ClientID:   "{app_id}",
			QoS:        0,
			KeepAlive:  60,
			QueueSize:  256,
			IgnoreSelf: true,
			Topics: MQTTTopicsConfig{
				Status:           "flame/avsim/{app_id}/status",
				ScenarioLoad:     "flame/avsim/{app_id}/scenario/load",
				ScenarioStart:    "flame/avsim/{app_id}/scenario/start",
				ScenarioPause:    "flame/avsim/{app_id}/scenario/pause",
				ScenarioStop:     "flame/avsim/{app_id}/scenario/stop",
				RecordingStart:   "flame/avsim/{app_id}/recording/start",
				RecordingStop:    "flame/avsim/{app_id}/recording/stop",
				ProcessLaunch:    "flame/avsim/broker/process/mapi_launch",
				ProcessTerminate: "flame/avsim/broker/process/mapi_terminate",
			},
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5672,
			Username:     "guest",
			Password:     "guest",
			VHost:        "/",
			Exchange:     "amq.topic",
			ExchangeType: "topic",
		},
		Broker: BrokerConfig{
			ClientID: "avsim_broker",
			Shell:    "/bin/sh",
		},
		Cameras: []CameraConfig{
			{ID: 0, Kind: "simulated", Name: "cabina", Width: 320, Height: 240, FPS: 15},
		},
		Eyetracker: EyetrackerConfig{
			Enabled:      false,
			Address:      "neon.local:8080",
			PollInterval: 5,
			Timeout:      3,
		},
		Recording: RecordingConfig{
			Root: "data",
		},
		Webview: WebviewConfig{
			Listen:       ":8000",
			Title:        "Flame AVSIM Cabinview",
			Company:      "IAE",
			Version:      "0.1.0",
			Host:         "127.0.0.1",
			Port:         "8000",
			BrokerIP:     "127.0.0.1",
			BrokerWSPort: 8083,
		},
		UI: UIConfig{
			Window: WindowConfig{
				Width:  1280,
				Height: 800,
				Title:  "AVSIM Monitor - {app_id}",
			},
			FPS: 60,
		},
	}
}

// DefaultResolved retorna Default() con las variables AVSIM_* aplicadas
// y los placeholders ya reemplazados
func DefaultResolved() *Config {
	cfg := Default()
	applyEnvOverrides(cfg)
	replaceAppIDPlaceholders(cfg)
	return cfg
}
