// Package dispatch implementa la tabla de MAPI: routing key (topic) →
// handler. Se arma una vez al inicio y después solo se lee, así que
// Dispatch se puede llamar desde varias goroutines sin locks.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flame-avsim/avsim-monitor/internal/metrics"
)

// ErrUnknownRoutingKey el topic no tiene handler registrado
var ErrUnknownRoutingKey = errors.New("MAPI desconocida")

// ErrSelfEcho el mensaje lo originó esta misma aplicación
var ErrSelfEcho = errors.New("mensaje propio ignorado")

// Handler procesa un payload JSON ya decodificado
type Handler func(payload map[string]any) error

// DecodeError el payload no es un objeto JSON
type DecodeError struct {
	RoutingKey string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("payload inválido en %s: %v", e.RoutingKey, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RoutingError no hay handler para el routing key
type RoutingError struct {
	RoutingKey string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnknownRoutingKey, e.RoutingKey)
}

func (e *RoutingError) Unwrap() error { return ErrUnknownRoutingKey }

// HandlerError envuelve el error (o panic) de un handler
type HandlerError struct {
	RoutingKey string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.RoutingKey, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Table mapea routing keys a handlers
type Table struct {
	handlers map[string]Handler
	order    []string
	selfID   string
	logger   *slog.Logger
}

// Option configura una Table
type Option func(*Table)

// WithSelfFilter descarta payloads cuyo campo "app" es igual a appID.
// Sin esta opción no se filtra nada.
func WithSelfFilter(appID string) Option {
	return func(t *Table) { t.selfID = appID }
}

// WithLogger reemplaza el logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// NewTable crea una tabla vacía
func NewTable(opts ...Option) *Table {
	t := &Table{
		handlers: make(map[string]Handler),
		logger:   slog.Default().With("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register agrega un handler. Registrar dos veces el mismo key es un
// error de programación.
func (t *Table) Register(routingKey string, h Handler) {
	if routingKey == "" || h == nil {
		panic("dispatch: routing key y handler son obligatorios")
	}
	if _, exists := t.handlers[routingKey]; exists {
		panic("dispatch: routing key duplicado " + routingKey)
	}
	t.handlers[routingKey] = h
	t.order = append(t.order, routingKey)
}

// Keys retorna los routing keys en orden de registro, para suscribirse
// a todos al conectar.
func (t *Table) Keys() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has indica si hay handler para el key
func (t *Table) Has(routingKey string) bool {
	_, ok := t.handlers[routingKey]
	return ok
}

// Dispatch decodifica raw e invoca el handler. Nunca hace panic: los
// errores se loguean y se retornan tipados.
func (t *Table) Dispatch(routingKey string, raw []byte) (err error) {
	h, ok := t.handlers[routingKey]
	if !ok {
		metrics.Dispatch.WithLabelValues("unknown_key").Inc()
		t.logger.Warn("⚠️  [MAPI] MAPI desconocida", "mapi", routingKey)
		return &RoutingError{RoutingKey: routingKey}
	}

	var payload map[string]any
	if jerr := json.Unmarshal(raw, &payload); jerr != nil || payload == nil {
		if jerr == nil {
			jerr = errors.New("se esperaba un objeto JSON")
		}
		metrics.Dispatch.WithLabelValues("decode_error").Inc()
		t.logger.Warn("⚠️  [MAPI] Payload inválido", "mapi", routingKey, "err", jerr)
		return &DecodeError{RoutingKey: routingKey, Err: jerr}
	}

	if t.selfID != "" {
		if app, ok := payload["app"].(string); ok && app == t.selfID {
			metrics.Dispatch.WithLabelValues("self").Inc()
			return ErrSelfEcho
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{RoutingKey: routingKey, Err: fmt.Errorf("panic: %v", r)}
			metrics.Dispatch.WithLabelValues("handler_error").Inc()
			t.logger.Error("❌ [MAPI] Panic en handler", "mapi", routingKey, "panic", r)
		}
	}()

	if herr := h(payload); herr != nil {
		metrics.Dispatch.WithLabelValues("handler_error").Inc()
		t.logger.Warn("⚠️  [MAPI] Error en handler", "mapi", routingKey, "err", herr)
		return &HandlerError{RoutingKey: routingKey, Err: herr}
	}

	metrics.Dispatch.WithLabelValues("ok").Inc()
	return nil
}

// String retorna un payload como string, vacío si falta o no es string
func String(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
