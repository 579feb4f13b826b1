package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/dispatch"
	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
	"github.com/flame-avsim/avsim-monitor/internal/metrics"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultQueueSize tamaño de la cola de mensajes entrantes
const DefaultQueueSize = 64

// ErrNotConnected publicar sin conexión al broker
var ErrNotConnected = errors.New("MQTT no conectado")

// MessagePublisher es lo mínimo que necesita quien publica a un topic
type MessagePublisher interface {
	Publish(topic string, payload []byte) error
}

type inbound struct {
	topic   string
	payload []byte
}

// Client conecta al broker, se suscribe a todas las MAPI de la tabla y
// las despacha desde una sola goroutine. Los callbacks de paho solo
// encolan.
type Client struct {
	config config.MQTTConfig
	table  *dispatch.Table
	bus    *eventbus.EventBus
	logger *slog.Logger
	client paho.Client

	// Will publicado por el broker si se pierde la conexión
	willTopic   string
	willPayload []byte

	inbox chan inbound
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	connected bool
}

// NewClient crea un cliente MQTT. table puede ser nil si solo se publica.
func NewClient(cfg config.MQTTConfig, table *dispatch.Table, bus *eventbus.EventBus) *Client {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	if table == nil {
		table = dispatch.NewTable()
	}
	return &Client{
		config: cfg,
		table:  table,
		bus:    bus,
		logger: slog.Default().With("component", "mqtt"),
		inbox:  make(chan inbound, size),
		done:   make(chan struct{}),
	}
}

// SetWill configura el last will antes de Start
func (c *Client) SetWill(topic string, payload []byte) {
	c.willTopic = topic
	c.willPayload = payload
}

// Start inicia el consumidor y conecta al broker. Con auto-reconnect un
// broker caído no es un error: el cliente sigue reintentando.
func (c *Client) Start() error {
	if !c.config.Enabled {
		c.logger.Info("ℹ️  [MQTT] Deshabilitado en configuración")
		return nil
	}

	c.startConsumer()

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	if c.config.KeepAlive > 0 {
		opts.SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	if c.willTopic != "" {
		opts.SetBinaryWill(c.willTopic, c.willPayload, c.config.QoS, true)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		c.logger.Info("🔄 [MQTT] Intentando reconectar...")
	})

	c.client = paho.NewClient(opts)

	c.logger.Info("📡 [MQTT] Conectando", "broker", c.config.Broker, "client_id", c.config.ClientID)
	token := c.client.Connect()
	// Con ConnectRetry el token solo falla por configuración inválida
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("error conectando a MQTT: %w", token.Error())
	}
	return nil
}

// Stop desconecta y detiene el consumidor
func (c *Client) Stop() {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	c.connected = false
	c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info("🛑 [MQTT] Desconectado")
	}

	if wasRunning {
		close(c.done)
		c.wg.Wait()
	}
}

func (c *Client) startConsumer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.wg.Add(1)
	go c.consume()
}

// consume es el único lector de la cola: decodifica y despacha en orden
func (c *Client) consume() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.inbox:
			// Los errores ya quedan logueados por la tabla
			_ = c.table.Dispatch(msg.topic, msg.payload)
		}
	}
}

// enqueue nunca bloquea el hilo de red de paho
func (c *Client) enqueue(topic string, payload []byte) bool {
	select {
	case c.inbox <- inbound{topic: topic, payload: payload}:
		return true
	default:
		metrics.BusDropped.WithLabelValues("mqtt_inbox").Inc()
		c.logger.Warn("⚠️  [MQTT] Cola llena, mensaje descartado", "topic", topic)
		return false
	}
}

func (c *Client) handleMessage(_ paho.Client, m paho.Message) {
	c.enqueue(m.Topic(), m.Payload())
}

func (c *Client) onConnect(client paho.Client) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("✅ [MQTT] Conectado exitosamente", "broker", c.config.Broker)
	c.notify(true, nil)

	keys := c.table.Keys()
	if len(keys) == 0 {
		return
	}
	filters := make(map[string]byte, len(keys))
	for _, k := range keys {
		filters[k] = c.config.QoS
	}

	token := client.SubscribeMultiple(filters, c.handleMessage)
	go func() {
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			c.logger.Error("❌ [MQTT] Error suscribiendo", "err", token.Error())
			return
		}
		c.logger.Info("📥 [MQTT] Suscrito a MAPI", "count", len(keys))
	}()
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.logger.Warn("⚠️  [MQTT] Conexión perdida", "err", err)
	c.notify(false, err)
}

func (c *Client) notify(connected bool, err error) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.New(eventbus.EventBusStatus, eventbus.BusStatusData{
		Connected: connected,
		Broker:    c.config.Broker,
		Err:       err,
	}))
}

// Publish publica payload tal cual en topic
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout publicando a %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("error publicando a %s: %w", topic, err)
	}
	return nil
}

// IsConnected indica si hay conexión activa
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
