package scenario

import (
	"errors"
	"math"
	"time"
)

// DefaultTickInterval es el paso del cursor por tick
const DefaultTickInterval = 100 * time.Millisecond

// ErrNoSchedule se retorna al iniciar sin escenario cargado
var ErrNoSchedule = errors.New("no hay escenario cargado")

// State del reproductor
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	return [...]string{
		"STOPPED",
		"RUNNING",
		"PAUSED",
	}[s]
}

// TickResult es lo que produce un tick
type TickResult struct {
	Due      []Event // eventos del bucket actual, en orden de inserción
	Finished bool
}

// Player recorre un Schedule en pasos fijos. No es seguro para uso
// concurrente; el Runner serializa el acceso.
type Player struct {
	schedule *Schedule
	interval time.Duration
	state    State
	ticks    int64 // cursor = ticks * interval
}

// NewPlayer crea un reproductor detenido
func NewPlayer(interval time.Duration) *Player {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Player{interval: interval, state: Stopped}
}

// Load detiene la reproducción, descarta el schedule anterior e instala
// el nuevo. Un schedule vacío o nil deja el reproductor sin escenario.
func (p *Player) Load(s *Schedule) error {
	p.Stop()
	p.schedule = nil

	if s.Empty() {
		return &LoadError{Err: ErrEmptyScenario}
	}

	p.schedule = s
	return nil
}

// Start arranca desde 0 si estaba detenido, o reanuda desde el cursor
// actual si estaba en pausa.
func (p *Player) Start() error {
	if p.schedule == nil {
		return ErrNoSchedule
	}

	switch p.state {
	case Stopped:
		p.ticks = 0
		p.state = Running
	case Paused:
		p.state = Running
	}
	return nil
}

// Pause detiene los ticks conservando el cursor
func (p *Player) Pause() bool {
	if p.state != Running {
		return false
	}
	p.state = Paused
	return true
}

// Stop detiene y vuelve el cursor a 0
func (p *Player) Stop() bool {
	changed := p.state != Stopped
	p.state = Stopped
	p.ticks = 0
	return changed
}

// Tick avanza un paso. Solo tiene efecto en Running.
func (p *Player) Tick() TickResult {
	if p.state != Running {
		return TickResult{}
	}

	key := p.key()
	if key > p.schedule.end {
		// Al terminar queda en Stopped con el cursor en 0
		p.state = Stopped
		p.ticks = 0
		return TickResult{Finished: true}
	}

	var due []Event
	if evs, ok := p.schedule.buckets[key]; ok && len(evs) > 0 {
		due = make([]Event, len(evs))
		copy(due, evs)
	}

	p.ticks++
	return TickResult{Due: due}
}

// key redondea el cursor a décimas
func (p *Player) key() int64 {
	return int64(math.Round(p.Cursor() * 10))
}

// Cursor retorna el tiempo actual de reproducción en segundos
func (p *Player) Cursor() float64 {
	return float64(p.ticks) * p.interval.Seconds()
}

// State retorna el estado actual
func (p *Player) State() State {
	return p.state
}

// Schedule retorna el escenario instalado (nil si no hay)
func (p *Player) Schedule() *Schedule {
	return p.schedule
}

// Interval retorna el paso por tick
func (p *Player) Interval() time.Duration {
	return p.interval
}

// EndTime retorna el tiempo final del escenario instalado
func (p *Player) EndTime() float64 {
	return p.schedule.EndTime()
}
