package scenario

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
	"github.com/flame-avsim/avsim-monitor/internal/metrics"
)

// Ticker abstrae time.Ticker para poder manejar los ticks en tests
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc crea un Ticker con el intervalo dado
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker es el TickerFunc por defecto
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Snapshot es una vista del reproductor para la UI y el estado remoto
type Snapshot struct {
	State   State
	Cursor  float64
	EndTime float64
	Events  int
	Source  string
}

// Runner maneja el Player con un ticker en su propia goroutine y publica
// los eventos en el bus. Cada tick corre completo bajo el mutex, así que
// Stop/Pause surten efecto antes del siguiente tick.
type Runner struct {
	bus       *eventbus.EventBus
	newTicker TickerFunc
	logger    *slog.Logger

	mu     sync.Mutex
	player *Player
	source string
	gen    uint64 // generación del loop activo
	halt   chan struct{}
}

// RunnerOption configura un Runner
type RunnerOption func(*Runner)

// WithTicker reemplaza el ticker real
func WithTicker(f TickerFunc) RunnerOption {
	return func(r *Runner) { r.newTicker = f }
}

// NewRunner crea un nuevo Runner detenido
func NewRunner(interval time.Duration, bus *eventbus.EventBus, opts ...RunnerOption) *Runner {
	r := &Runner{
		bus:       bus,
		newTicker: NewRealTicker,
		logger:    slog.Default().With("component", "scenario"),
		player:    NewPlayer(interval),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load instala un schedule ya parseado
func (r *Runner) Load(s *Schedule, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	return r.installLocked(s, source, nil)
}

// LoadFile descarta el escenario actual y carga uno desde archivo
func (r *Runner) LoadFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// El escenario anterior se descarta antes de intentar la carga
	r.stopLocked()
	r.player.Load(nil)
	r.source = ""

	s, err := LoadFile(path)
	return r.installLocked(s, path, err)
}

func (r *Runner) installLocked(s *Schedule, source string, parseErr error) error {
	err := parseErr
	if err == nil {
		err = r.player.Load(s)
	}

	if err != nil {
		r.source = ""
		r.logger.Warn("⚠️  [Scenario] Carga fallida", "source", source, "err", err)
		r.publish(eventbus.New(eventbus.EventScenarioLoaded, eventbus.ScenarioLoadedData{Source: source, Err: err}))
		return err
	}

	r.source = source
	r.logger.Info("📋 [Scenario] Escenario cargado", "source", source, "events", s.Len(), "end", s.EndTime())
	r.publish(eventbus.New(eventbus.EventScenarioLoaded, eventbus.ScenarioLoadedData{
		Source:  source,
		Events:  s.Len(),
		EndTime: s.EndTime(),
	}))
	r.publishStateLocked()
	return nil
}

// Start inicia o reanuda la reproducción
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.player.State() == Running {
		return nil
	}
	if err := r.player.Start(); err != nil {
		return err
	}

	r.gen++
	r.halt = make(chan struct{})
	go r.loop(r.gen, r.newTicker(r.player.Interval()), r.halt)

	r.logger.Info("▶️  [Scenario] Reproducción iniciada", "cursor", r.player.Cursor())
	r.publishStateLocked()
	return nil
}

// Pause pausa la reproducción sin reiniciar el cursor
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.player.Pause() {
		return
	}
	r.haltLocked()
	r.logger.Info("⏸️  [Scenario] Reproducción pausada", "cursor", r.player.Cursor())
	r.publishStateLocked()
}

// Stop detiene la reproducción y vuelve el cursor a 0
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopLocked() {
		r.logger.Info("🛑 [Scenario] Reproducción detenida")
		r.publishStateLocked()
	}
}

func (r *Runner) stopLocked() bool {
	r.haltLocked()
	return r.player.Stop()
}

func (r *Runner) haltLocked() {
	if r.halt != nil {
		close(r.halt)
		r.halt = nil
	}
	// Un loop que esté esperando el mutex verá otra generación y saldrá
	r.gen++
}

// Snapshot retorna el estado actual
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		State:   r.player.State(),
		Cursor:  r.player.Cursor(),
		EndTime: r.player.EndTime(),
		Events:  r.player.Schedule().Len(),
		Source:  r.source,
	}
}

// Schedule retorna el escenario instalado
func (r *Runner) Schedule() *Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.player.Schedule()
}

func (r *Runner) loop(gen uint64, t Ticker, halt <-chan struct{}) {
	defer t.Stop()

	for {
		select {
		case <-halt:
			return
		case <-t.C():
			if !r.tick(gen) {
				return
			}
		}
	}
}

// tick ejecuta un tick completo; retorna false cuando el loop debe terminar
func (r *Runner) tick(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || r.player.State() != Running {
		return false
	}

	res := r.player.Tick()
	for _, ev := range res.Due {
		metrics.ScenarioEvents.Inc()
		r.publish(eventbus.New(eventbus.EventScenarioDue, eventbus.ScenarioDueData{
			Time:       ev.Time,
			RoutingKey: ev.RoutingKey,
			Message:    ev.Message,
		}))
	}

	if res.Finished {
		metrics.ScenarioFinished.Inc()
		r.haltLocked()
		r.logger.Info("✅ [Scenario] Escenario completado", "source", r.source)
		r.publish(eventbus.New(eventbus.EventScenarioFinished, nil))
		r.publishStateLocked()
		return false
	}
	return true
}

func (r *Runner) publishStateLocked() {
	r.publish(eventbus.New(eventbus.EventScenarioState, eventbus.ScenarioStateData{
		State:   r.player.State().String(),
		Cursor:  r.player.Cursor(),
		EndTime: r.player.EndTime(),
	}))
}

func (r *Runner) publish(ev eventbus.Event) {
	if r.bus == nil {
		return
	}
	if !r.bus.Publish(ev) {
		metrics.BusDropped.WithLabelValues(string(ev.Type)).Inc()
		r.logger.Warn("⚠️  [Scenario] Suscriptor lleno, evento descartado", "type", ev.Type)
	}
}
