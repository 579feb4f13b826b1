package mqtt

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
)

// dueBuffer debe alcanzar para el bucket más grande de un escenario
const dueBuffer = 256

// Publisher reenvía al broker lo que el reproductor publica en el bus:
// cada evento vencido en su MAPI con el mensaje tal cual, y los cambios
// de estado en el topic de status.
type Publisher struct {
	out         MessagePublisher
	appID       string
	statusTopic string
	bus         *eventbus.EventBus
	logger      *slog.Logger

	dueEvents      <-chan eventbus.Event
	stateEvents    <-chan eventbus.Event
	finishedEvents <-chan eventbus.Event
	busEvents      <-chan eventbus.Event

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher crea un nuevo publicador
func NewPublisher(out MessagePublisher, appID, statusTopic string, bus *eventbus.EventBus) *Publisher {
	return &Publisher{
		out:         out,
		appID:       appID,
		statusTopic: statusTopic,
		bus:         bus,
		logger:      slog.Default().With("component", "mqtt"),
	}
}

// Start se suscribe al bus y publica "online"
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.done = make(chan struct{})

	p.dueEvents = p.bus.SubscribeBuffered(eventbus.EventScenarioDue, dueBuffer)
	p.stateEvents = p.bus.Subscribe(eventbus.EventScenarioState)
	p.finishedEvents = p.bus.Subscribe(eventbus.EventScenarioFinished)
	p.busEvents = p.bus.Subscribe(eventbus.EventBusStatus)

	p.wg.Add(1)
	go p.loop()

	p.publishStatus("online")
}

// Stop publica "offline" y termina el loop
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	p.publishStatus("offline")
}

func (p *Publisher) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return

		case ev, ok := <-p.dueEvents:
			if !ok {
				return
			}
			data := ev.Data.(eventbus.ScenarioDueData)
			p.send(data.RoutingKey, []byte(data.Message))

		case ev, ok := <-p.stateEvents:
			if !ok {
				return
			}
			data := ev.Data.(eventbus.ScenarioStateData)
			p.sendJSON(p.statusTopic, map[string]interface{}{
				"app":       p.appID,
				"state":     data.State,
				"cursor":    data.Cursor,
				"end_time":  data.EndTime,
				"timestamp": ev.Timestamp.UTC().Format(time.RFC3339),
			})

		case ev, ok := <-p.finishedEvents:
			if !ok {
				return
			}
			p.sendJSON(p.statusTopic, map[string]interface{}{
				"app":       p.appID,
				"event":     "finished",
				"timestamp": ev.Timestamp.UTC().Format(time.RFC3339),
			})

		case ev, ok := <-p.busEvents:
			if !ok {
				return
			}
			// tras cada (re)conexión se vuelve a anunciar, el will pudo
			// haber dejado "offline" en el broker
			if data, _ := ev.Data.(eventbus.BusStatusData); data.Connected {
				p.publishStatus("online")
			}
		}
	}
}

func (p *Publisher) publishStatus(status string) {
	p.send(p.statusTopic, StatusPayload(p.appID, status))
}

// StatusPayload arma el mensaje online/offline, también usado como will
func StatusPayload(appID, status string) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"app":       appID,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

func (p *Publisher) sendJSON(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("⚠️  [MQTT] Error serializando JSON", "err", err)
		return
	}
	p.send(topic, data)
}

func (p *Publisher) send(topic string, payload []byte) {
	if topic == "" {
		return
	}
	if err := p.out.Publish(topic, payload); err != nil {
		if errors.Is(err, ErrNotConnected) {
			p.logger.Debug("[MQTT] Sin conexión, mensaje no publicado", "topic", topic)
			return
		}
		p.logger.Warn("⚠️  [MQTT] Error publicando", "topic", topic, "err", err)
	}
}
