package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel es la parte de *amqp.Channel que usa el espejo
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Dialer abre un canal nuevo cuando el anterior dejó de funcionar
type Dialer func() (AMQPChannel, error)

// redialInterval espera entre intentos de reconexión
var redialInterval = 5 * time.Second

// RabbitMQPublisher replica en un exchange AMQP los eventos de escenario,
// para que la ingesta de datos los guarde junto a las demás señales.
type RabbitMQPublisher struct {
	config config.RabbitMQConfig
	appID  string
	status string // topic MQTT de status, se traduce a routing key
	bus    *eventbus.EventBus
	logger *slog.Logger

	mu        sync.RWMutex
	channel   AMQPChannel
	dial      Dialer
	running   bool
	connected bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRabbitMQPublisher crea un nuevo espejo AMQP con canal compartido
func NewRabbitMQPublisher(ch AMQPChannel, cfg config.RabbitMQConfig, appID, statusTopic string, bus *eventbus.EventBus) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		config:    cfg,
		appID:     appID,
		status:    statusTopic,
		channel:   ch,
		bus:       bus,
		logger:    slog.Default().With("component", "rabbitmq"),
		connected: ch != nil,
	}
}

// SetDialer habilita la reconexión tras un error de publicación.
// Debe llamarse antes de Start.
func (p *RabbitMQPublisher) SetDialer(d Dialer) {
	p.mu.Lock()
	p.dial = d
	p.mu.Unlock()
}

// Start declara el exchange y empieza a replicar
func (p *RabbitMQPublisher) Start() error {
	if !p.config.Enabled {
		p.logger.Info("ℹ️  [RabbitMQ] Deshabilitado en configuración")
		return nil
	}
	if p.channel == nil {
		return fmt.Errorf("canal RabbitMQ no inicializado")
	}

	if err := p.declare(p.channel); err != nil {
		return err
	}

	p.mu.Lock()
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	due := p.bus.SubscribeBuffered(eventbus.EventScenarioDue, dueBuffer)
	finished := p.bus.Subscribe(eventbus.EventScenarioFinished)
	state := p.bus.Subscribe(eventbus.EventScenarioState)

	p.wg.Add(1)
	go p.loop(due, finished, state)

	p.logger.Info("✅ [RabbitMQ] Publicador iniciado", "exchange", p.config.Exchange, "type", p.exchangeKind())
	return nil
}

func (p *RabbitMQPublisher) exchangeKind() string {
	if p.config.ExchangeType == "" {
		return amqp.ExchangeTopic
	}
	return p.config.ExchangeType
}

func (p *RabbitMQPublisher) declare(ch AMQPChannel) error {
	// amq.* ya existen y no se pueden redeclarar con otros parámetros
	if strings.HasPrefix(p.config.Exchange, "amq.") {
		return nil
	}
	if err := ch.ExchangeDeclare(p.config.Exchange, p.exchangeKind(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("error declarando exchange %s: %w", p.config.Exchange, err)
	}
	return nil
}

// Stop detiene el publicador
func (p *RabbitMQPublisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("🛑 [RabbitMQ] Publicador detenido", "app", p.appID)
}

func (p *RabbitMQPublisher) loop(due, finished, state <-chan eventbus.Event) {
	defer p.wg.Done()

	redial := time.NewTicker(redialInterval)
	defer redial.Stop()

	for {
		select {
		case <-p.done:
			return

		case <-redial.C:
			if !p.isConnected() {
				p.redial()
			}

		case ev, ok := <-due:
			if !ok {
				return
			}
			data := ev.Data.(eventbus.ScenarioDueData)
			p.publish(RoutingKey(data.RoutingKey), map[string]interface{}{
				"timestamp":   ev.Timestamp.Unix(),
				"app":         p.appID,
				"sensor_type": "SCENARIO_EVENT",
				"data": map[string]interface{}{
					"time":    data.Time,
					"mapi":    data.RoutingKey,
					"message": json.RawMessage(data.Message),
				},
			})

		case ev, ok := <-finished:
			if !ok {
				return
			}
			p.publish(RoutingKey(p.status), map[string]interface{}{
				"timestamp":   ev.Timestamp.Unix(),
				"app":         p.appID,
				"sensor_type": "SCENARIO_FINISHED",
				"data":        map[string]interface{}{},
			})

		case ev, ok := <-state:
			if !ok {
				return
			}
			data := ev.Data.(eventbus.ScenarioStateData)
			p.publish(RoutingKey(p.status), map[string]interface{}{
				"timestamp":   ev.Timestamp.Unix(),
				"app":         p.appID,
				"sensor_type": "SCENARIO_STATE",
				"data": map[string]interface{}{
					"state":    data.State,
					"cursor":   data.Cursor,
					"end_time": data.EndTime,
				},
			})
		}
	}
}

// RoutingKey traduce un topic MQTT a routing key AMQP
func RoutingKey(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (p *RabbitMQPublisher) publish(routingKey string, payload interface{}) {
	if !p.isConnected() {
		return
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("⚠️  [RabbitMQ] Error serializando JSON", "err", err)
		return
	}

	p.mu.RLock()
	channel := p.channel
	exchange := p.config.Exchange
	p.mu.RUnlock()

	err = channel.Publish(
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        jsonData,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		p.mu.Lock()
		p.connected = false
		canRedial := p.dial != nil
		p.mu.Unlock()
		if canRedial {
			p.logger.Warn("⚠️  [RabbitMQ] Error publicando, espejo pausado hasta reconectar", "routing_key", routingKey, "err", err)
		} else {
			p.logger.Error("❌ [RabbitMQ] Error publicando, espejo deshabilitado", "routing_key", routingKey, "err", err)
		}
	}
}

// redial reemplaza el canal caído por uno nuevo
func (p *RabbitMQPublisher) redial() {
	p.mu.RLock()
	dial := p.dial
	p.mu.RUnlock()
	if dial == nil {
		return
	}

	ch, err := dial()
	if err != nil {
		p.logger.Debug("[RabbitMQ] Reconexión fallida", "err", err)
		return
	}
	if err := p.declare(ch); err != nil {
		p.logger.Warn("⚠️  [RabbitMQ] Reconectado pero sin exchange", "err", err)
		return
	}

	p.mu.Lock()
	p.channel = ch
	p.connected = true
	p.mu.Unlock()
	p.logger.Info("🔄 [RabbitMQ] Reconectado", "exchange", p.config.Exchange)
}

func (p *RabbitMQPublisher) currentChannel() AMQPChannel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channel
}

func (p *RabbitMQPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// AMQPURL arma la URI amqp:// con las credenciales escapadas
func AMQPURL(cfg config.RabbitMQConfig) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + strings.TrimPrefix(cfg.VHost, "/"),
	}
	return u.String()
}

// ConnectRabbitMQ establece conexión a RabbitMQ y retorna la conexión
func ConnectRabbitMQ(cfg config.RabbitMQConfig) (*amqp.Connection, error) {
	conn, err := amqp.Dial(AMQPURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("error conectando a RabbitMQ: %w", err)
	}
	return conn, nil
}
