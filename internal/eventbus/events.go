package eventbus

import "time"

// ========================================
// TIPOS DE EVENTOS
// ========================================

type EventType string

const (
	EventScenarioDue      EventType = "scenario_due"
	EventScenarioFinished EventType = "scenario_finished"
	EventScenarioState    EventType = "scenario_state"
	EventScenarioLoaded   EventType = "scenario_loaded"
	EventBusStatus        EventType = "bus_status"
	EventDeviceError      EventType = "device_error"
	EventSession          EventType = "session"
	EventStatus           EventType = "status"
)

// ========================================
// EVENTO GENÉRICO
// ========================================

type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// New arma un evento con timestamp actual
func New(t EventType, data interface{}) Event {
	return Event{Type: t, Timestamp: time.Now(), Data: data}
}

// ========================================
// ESCENARIO
// ========================================

// ScenarioDueData es un evento del escenario que vence en este tick
type ScenarioDueData struct {
	Time       float64 // clave del bucket (segundos, 0.1s)
	RoutingKey string  // MAPI
	Message    string  // JSON tal cual se publica
}

// ScenarioStateData describe una transición del reproductor
type ScenarioStateData struct {
	State   string // "STOPPED", "RUNNING", "PAUSED"
	Cursor  float64
	EndTime float64
}

// ScenarioLoadedData resume un escenario recién cargado
type ScenarioLoadedData struct {
	Source  string
	Events  int
	EndTime float64
	Err     error // nil si la carga fue exitosa
}

// ========================================
// BUS DE MENSAJES (MQTT)
// ========================================

type BusStatusData struct {
	Connected bool
	Broker    string
	Err       error
}

// ========================================
// DISPOSITIVOS
// ========================================

// EyetrackerStatusData estado del eye-tracker (Neon)
type EyetrackerStatusData struct {
	Address       string
	Name          string
	BatteryLevel  float64 // porcentaje
	BatteryState  string
	FreeStorageGB float64
	MemoryState   string
	Recording     bool
}

// DeviceErrorData error reportado por un dispositivo externo
type DeviceErrorData struct {
	Device string
	Err    error
}

// ========================================
// SESIÓN / ESTADO
// ========================================

// SessionData cambios de sesión (nuevo sujeto, grabación)
type SessionData struct {
	Subject   string
	Workspace string
	Recording bool
}

// StatusData mensaje libre para la barra de estado
type StatusData struct {
	Message string
	Level   string // "info", "success", "warning", "error"
}
