// Package app arma el monitor: bus, reproductor de escenarios, MQTT,
// espejo AMQP, dispositivos, sesiones y métricas. Lo usan tanto la
// ventana como el modo headless.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/device"
	"github.com/flame-avsim/avsim-monitor/internal/device/camera"
	"github.com/flame-avsim/avsim-monitor/internal/device/eyetracker"
	"github.com/flame-avsim/avsim-monitor/internal/dispatch"
	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
	"github.com/flame-avsim/avsim-monitor/internal/metrics"
	"github.com/flame-avsim/avsim-monitor/internal/mqtt"
	"github.com/flame-avsim/avsim-monitor/internal/scenario"
	"github.com/flame-avsim/avsim-monitor/internal/session"
)

// sampleBuffer tamaño de la cola compartida de muestras de dispositivos
const sampleBuffer = 32

// Monitor es la aplicación completa sin la ventana
type Monitor struct {
	cfg    *config.Config
	logger *slog.Logger

	Bus      *eventbus.EventBus
	Runner   *scenario.Runner
	Table    *dispatch.Table
	Devices  *device.Controller
	Cameras  *camera.Registry
	Neon     *eyetracker.Neon
	Sessions *session.Manager

	mqtt      *mqtt.Client
	publisher *mqtt.Publisher
	rabbit    *mqtt.RabbitMQPublisher
	metrics   *http.Server

	amqpMu   sync.Mutex
	amqpConn *amqp.Connection
}

// Option configura un Monitor en New
type Option func(*Monitor)

// WithTicker reemplaza el ticker del reproductor (tests)
func WithTicker(f scenario.TickerFunc) Option {
	return func(m *Monitor) {
		m.Runner = scenario.NewRunner(m.cfg.Scenario.Interval(), m.Bus, scenario.WithTicker(f))
	}
}

// New arma todos los componentes sin conectar nada todavía
func New(cfg *config.Config, opts ...Option) *Monitor {
	bus := eventbus.NewEventBus()

	var tableOpts []dispatch.Option
	if cfg.MQTT.IgnoreSelf {
		tableOpts = append(tableOpts, dispatch.WithSelfFilter(cfg.AppID))
	}

	m := &Monitor{
		cfg:      cfg,
		logger:   slog.Default().With("component", "app"),
		Bus:      bus,
		Runner:   scenario.NewRunner(cfg.Scenario.Interval(), bus),
		Table:    dispatch.NewTable(tableOpts...),
		Devices:  device.NewController(sampleBuffer, bus),
		Sessions: session.NewManager(cfg.Recording.Root, bus),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.Scenario.Interval() > scenario.DefaultTickInterval {
		m.logger.Warn("⚠️  [App] tick_interval mayor a 0.1s: se saltean los buckets entre ticks",
			"tick_interval", cfg.Scenario.TickInterval)
	}

	m.registerHandlers()

	m.mqtt = mqtt.NewClient(cfg.MQTT, m.Table, bus)
	m.mqtt.SetWill(cfg.MQTT.Topics.Status, mqtt.StatusPayload(cfg.AppID, "offline"))
	m.publisher = mqtt.NewPublisher(m.mqtt, cfg.AppID, cfg.MQTT.Topics.Status, bus)

	cams, errs := camera.FromConfig(cfg.Cameras)
	for _, err := range errs {
		m.reportDeviceError(err)
	}
	m.Cameras = cams
	for _, e := range cams.All() {
		m.Sessions.AddRecorder(camera.NewTap(m.Devices, e.Config.ID))
	}

	if cfg.Eyetracker.Enabled {
		m.Neon = eyetracker.NewNeon(cfg.Eyetracker.Address, seconds(cfg.Eyetracker.Timeout))
		m.Sessions.AddRecorder(m.Neon)
	}
	return m
}

// Start conecta MQTT, el espejo AMQP y el eye-tracker, levanta /metrics
// y carga el escenario inicial. Las fallas de red no son fatales: el
// monitor sigue funcionando local.
func (m *Monitor) Start(ctx context.Context) error {
	m.Sessions.Start()
	m.publisher.Start()
	if err := m.mqtt.Start(); err != nil {
		m.logger.Warn("⚠️  [App] MQTT no disponible", "err", err)
	}
	m.startRabbitMQ()

	if err := m.startMetrics(); err != nil {
		return err
	}

	if m.Neon != nil {
		interval := seconds(m.cfg.Eyetracker.PollInterval)
		// una falla de apertura ya la reporta el controlador
		_ = m.Devices.Start(ctx, m.Neon, interval)
	}

	if file := m.cfg.Scenario.InitialFile; file != "" {
		// el error ya se publica como EventScenarioLoaded
		_ = m.Runner.LoadFile(m.scenarioPath(file))
	}

	m.logger.Info("✅ [App] Monitor iniciado", "app_id", m.cfg.AppID)
	return nil
}

func (m *Monitor) startRabbitMQ() {
	if !m.cfg.RabbitMQ.Enabled {
		return
	}
	ch, err := m.dialRabbitMQ()
	if err != nil {
		m.logger.Warn("⚠️  [App] RabbitMQ no disponible", "err", err)
		return
	}
	m.rabbit = mqtt.NewRabbitMQPublisher(ch, m.cfg.RabbitMQ, m.cfg.AppID, m.cfg.MQTT.Topics.Status, m.Bus)
	m.rabbit.SetDialer(m.dialRabbitMQ)
	if err := m.rabbit.Start(); err != nil {
		m.logger.Warn("⚠️  [App] Espejo RabbitMQ no iniciado", "err", err)
	}
}

// dialRabbitMQ abre conexión y canal nuevos; la conexión anterior se cierra
func (m *Monitor) dialRabbitMQ() (mqtt.AMQPChannel, error) {
	conn, err := mqtt.ConnectRabbitMQ(m.cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error abriendo canal RabbitMQ: %w", err)
	}

	m.amqpMu.Lock()
	old := m.amqpConn
	m.amqpConn = conn
	m.amqpMu.Unlock()
	if old != nil {
		old.Close()
	}
	return ch, nil
}

// startMetrics expone /metrics y /status si metrics.listen está configurado
func (m *Monitor) startMetrics() error {
	if m.cfg.Metrics.Listen == "" {
		return nil
	}
	if m.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, m.Status())
	})

	m.metrics = &http.Server{
		Addr:              m.cfg.Metrics.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := m.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("❌ [App] Servidor de métricas", "err", err)
		}
	}()
	m.logger.Info("📈 [App] Métricas", "addr", m.cfg.Metrics.Listen)
	return nil
}

// ConnectCameras arranca un worker por cámara. ctx acota solo la
// apertura; las que ya corren se ignoran.
func (m *Monitor) ConnectCameras(ctx context.Context) []error {
	var errs []error
	for _, err := range m.Cameras.StartAll(ctx, m.Devices) {
		if errors.Is(err, device.ErrAlreadyRunning) {
			continue
		}
		errs = append(errs, err)
	}
	m.logger.Info("📷 [App] Cámaras conectadas", "total", m.Cameras.Len(), "errors", len(errs))
	return errs
}

// Stop detiene todo en orden inverso al arranque
func (m *Monitor) Stop(ctx context.Context) error {
	m.Runner.Stop()

	err := m.Sessions.Stop(ctx)
	m.Devices.StopAll()

	m.publisher.Stop()
	m.mqtt.Stop()
	if m.rabbit != nil {
		m.rabbit.Stop()
	}
	m.amqpMu.Lock()
	if m.amqpConn != nil {
		m.amqpConn.Close()
		m.amqpConn = nil
	}
	m.amqpMu.Unlock()
	if m.metrics != nil {
		err = errors.Join(err, m.metrics.Shutdown(ctx))
	}

	m.Bus.Close()
	m.logger.Info("🛑 [App] Monitor detenido")
	return err
}

// StatusReport lo que expone /status
type StatusReport struct {
	AppID     string   `json:"app"`
	State     string   `json:"state"`
	Cursor    float64  `json:"cursor"`
	EndTime   float64  `json:"end_time"`
	Events    int      `json:"events"`
	Source    string   `json:"source"`
	MQTT      bool     `json:"mqtt_connected"`
	Subject   string   `json:"subject"`
	Recording bool     `json:"recording"`
	Devices   []string `json:"devices"`
}

// Status resume el estado del monitor
func (m *Monitor) Status() StatusReport {
	snap := m.Runner.Snapshot()
	sess := m.Sessions.Snapshot()
	return StatusReport{
		AppID:     m.cfg.AppID,
		State:     snap.State.String(),
		Cursor:    snap.Cursor,
		EndTime:   snap.EndTime,
		Events:    snap.Events,
		Source:    snap.Source,
		MQTT:      m.mqtt.IsConnected(),
		Subject:   sess.Subject,
		Recording: sess.Recording,
		Devices:   m.Devices.IDs(),
	}
}

// reportDeviceError publica errores de cámaras mal configuradas, que
// nunca llegan al controlador
func (m *Monitor) reportDeviceError(err error) {
	var devErr *device.DeviceError
	name := "?"
	if errors.As(err, &devErr) {
		name = devErr.Device
	}
	metrics.DeviceErrors.WithLabelValues(name).Inc()
	m.logger.Warn("⚠️  [App] Dispositivo", "device", name, "err", err)
	m.Bus.Publish(eventbus.New(eventbus.EventDeviceError, eventbus.DeviceErrorData{Device: name, Err: err}))
}

// notify manda un mensaje al log de estado de la UI
func (m *Monitor) notify(level, format string, args ...interface{}) {
	m.Bus.Publish(eventbus.New(eventbus.EventStatus, eventbus.StatusData{
		Message: fmt.Sprintf(format, args...),
		Level:   level,
	}))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
