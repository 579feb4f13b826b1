package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyScenario el documento no tiene entradas "scenario"
	ErrEmptyScenario = errors.New("scenario vacío")
	// ErrTimePrecision el tiempo no es múltiplo de 0.1s
	ErrTimePrecision = errors.New("el tiempo debe ser múltiplo de 0.1s")
)

// LoadError indica que un documento de escenario no se pudo cargar.
// La reproducción queda detenida.
type LoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "error cargando escenario"
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Event es un evento programado del escenario. Inmutable tras la carga.
type Event struct {
	Time       float64 // segundos desde el inicio, múltiplo de 0.1
	RoutingKey string  // MAPI (topic) donde se publica
	Message    string  // JSON válido, se publica tal cual
}

// Schedule agrupa eventos por bucket de tiempo (décimas de segundo).
// Se construye entero en cada carga y no se modifica durante la reproducción.
type Schedule struct {
	buckets map[int64][]Event
	keys    []int64 // ordenadas
	count   int
	end     int64
}

type document struct {
	Scenario []scene `json:"scenario"`
}

type scene struct {
	Time  *float64   `json:"time"`
	Event []rawEvent `json:"event"`
}

type rawEvent struct {
	MAPI       string          `json:"mapi"`
	RoutingKey string          `json:"routing_key"`
	Message    json.RawMessage `json:"message"`
}

// Parse construye un Schedule desde un documento JSON
// {"scenario":[{"time":0.0,"event":[{"mapi":"...","message":"{...}"}]}]}
func Parse(data []byte) (*Schedule, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Reason: "JSON inválido", Err: err}
	}

	if len(doc.Scenario) == 0 {
		return nil, &LoadError{Err: ErrEmptyScenario}
	}

	s := &Schedule{buckets: make(map[int64][]Event)}

	for i, sc := range doc.Scenario {
		if sc.Time == nil {
			return nil, &LoadError{Reason: fmt.Sprintf("entrada %d sin \"time\"", i)}
		}
		key, err := toTenths(*sc.Time)
		if err != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("entrada %d (time=%v)", i, *sc.Time), Err: err}
		}

		if _, ok := s.buckets[key]; !ok {
			s.buckets[key] = make([]Event, 0, len(sc.Event))
			s.keys = append(s.keys, key)
		}

		for j, raw := range sc.Event {
			ev, err := raw.toEvent(float64(key) / 10)
			if err != nil {
				return nil, &LoadError{Reason: fmt.Sprintf("entrada %d evento %d", i, j), Err: err}
			}
			// Tiempos repetidos se acumulan en el mismo bucket
			s.buckets[key] = append(s.buckets[key], ev)
			s.count++
		}
	}

	sort.Slice(s.keys, func(a, b int) bool { return s.keys[a] < s.keys[b] })
	s.end = s.keys[len(s.keys)-1]

	return s, nil
}

// LoadFile lee un escenario .json o .yaml/.yml
func LoadFile(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Reason: "lectura", Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, &LoadError{Source: path, Reason: "YAML inválido", Err: err}
		}
	}

	s, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Source = path
		}
		return nil, err
	}
	return s, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func toTenths(t float64) (int64, error) {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return 0, fmt.Errorf("tiempo inválido %v", t)
	}
	scaled := t * 10
	r := math.Round(scaled)
	if math.Abs(scaled-r) > 1e-6 {
		return 0, ErrTimePrecision
	}
	return int64(r), nil
}

func (r rawEvent) toEvent(t float64) (Event, error) {
	key := r.MAPI
	if key == "" {
		key = r.RoutingKey
	}
	if key == "" {
		return Event{}, errors.New("evento sin \"mapi\"")
	}

	msg, err := normalizeMessage(r.Message)
	if err != nil {
		return Event{}, fmt.Errorf("mapi %s: %w", key, err)
	}

	return Event{Time: t, RoutingKey: key, Message: msg}, nil
}

// normalizeMessage acepta un string con JSON o un valor JSON en línea y
// retorna el texto JSON a publicar.
func normalizeMessage(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", errors.New("evento sin \"message\"")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		if !json.Valid([]byte(s)) {
			return "", fmt.Errorf("message no es JSON válido: %q", s)
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// EndTime retorna la clave máxima del schedule en segundos
func (s *Schedule) EndTime() float64 {
	if s == nil {
		return 0
	}
	return float64(s.end) / 10
}

// Len retorna el número total de eventos
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Empty es true si el schedule no tiene buckets
func (s *Schedule) Empty() bool {
	return s == nil || len(s.keys) == 0
}

// Buckets retorna las claves (segundos) en orden
func (s *Schedule) Buckets() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.keys))
	for i, k := range s.keys {
		out[i] = float64(k) / 10
	}
	return out
}

// Events retorna los eventos del bucket que corresponde a t
func (s *Schedule) Events(t float64) []Event {
	if s == nil {
		return nil
	}
	return s.bucket(int64(math.Round(t * 10)))
}

func (s *Schedule) bucket(key int64) []Event {
	evs := s.buckets[key]
	out := make([]Event, len(evs))
	copy(out, evs)
	return out
}

// Rows aplana el schedule en orden (bucket, inserción) para mostrarlo en tabla
func (s *Schedule) Rows() []Event {
	if s == nil {
		return nil
	}
	rows := make([]Event, 0, s.count)
	for _, k := range s.keys {
		rows = append(rows, s.buckets[k]...)
	}
	return rows
}

// String implementa fmt.Stringer
func (s *Schedule) String() string {
	return fmt.Sprintf("Escenario: %d eventos en %d buckets, fin %.1fs", s.Len(), len(s.Buckets()), s.EndTime())
}
