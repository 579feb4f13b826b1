package eventbus

import (
	"sync"
)

// DefaultBuffer es el tamaño de buffer de una suscripción normal
const DefaultBuffer = 10

// EventBus es el bus central de eventos usando Pub/Sub pattern
type EventBus struct {
	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	closed      bool
}

// NewEventBus crea una nueva instancia del Event Bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
	}
}

// Subscribe crea una suscripción a un tipo de evento específico
// Retorna un canal read-only para recibir eventos
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	return eb.SubscribeBuffered(eventType, DefaultBuffer)
}

// SubscribeBuffered es como Subscribe pero con un buffer explícito, para
// consumidores que no pueden perder eventos en ráfagas (p.ej. un bucket
// de escenario con muchos eventos).
func (eb *EventBus) SubscribeBuffered(eventType EventType, size int) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if size < 1 {
		size = 1
	}
	ch := make(chan Event, size)
	if eb.closed {
		close(ch)
		return ch
	}

	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// Publish publica un evento a todos los suscriptores de ese tipo.
// Nunca bloquea: si el canal de un suscriptor está lleno, el evento se
// descarta para ese suscriptor y Publish retorna false.
func (eb *EventBus) Publish(event Event) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	delivered := true
	for _, ch := range eb.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			delivered = false
		}
	}
	return delivered
}

// Close cierra todos los canales de suscriptores
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, subs := range eb.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}

	eb.subscribers = make(map[EventType][]chan Event)
}
