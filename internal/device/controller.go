package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
	"github.com/flame-avsim/avsim-monitor/internal/metrics"
)

// DefaultBuffer tamaño de la cola compartida de muestras
const DefaultBuffer = 8

// errorBackoff pausa tras un Grab fallido para no saturar el log
var errorBackoff = 500 * time.Millisecond

// ErrAlreadyRunning el dispositivo ya tiene un worker
var ErrAlreadyRunning = errors.New("dispositivo ya iniciado")

// Stats estadísticas de captura por dispositivo
type Stats struct {
	Frames    uint64
	Dropped   uint64
	Errors    uint64
	FrameRate float64
	LastFrame time.Time
}

type worker struct {
	dev      Device
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	stats Stats // protegido por Controller.mu
}

// Controller corre un worker por dispositivo. Todos empujan a una cola
// acotada compartida; si está llena se descarta la muestra más vieja.
type Controller struct {
	bus    *eventbus.EventBus
	logger *slog.Logger
	out    chan Sample

	mu      sync.Mutex
	workers map[string]*worker
	sinks   map[string][]Sink
}

// NewController crea un controlador con una cola de size muestras
func NewController(size int, bus *eventbus.EventBus) *Controller {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Controller{
		bus:     bus,
		logger:  slog.Default().With("component", "device"),
		out:     make(chan Sample, size),
		workers: make(map[string]*worker),
		sinks:   make(map[string][]Sink),
	}
}

// Samples es la cola que consume la UI (o el agregador en headless)
func (c *Controller) Samples() <-chan Sample {
	return c.out
}

// Start abre el dispositivo y lanza su worker. interval 0 significa que
// Grab marca el ritmo (bloquea hasta el próximo frame).
func (c *Controller) Start(ctx context.Context, d Device, interval time.Duration) error {
	wctx, cancel := context.WithCancel(context.Background())
	w := &worker{dev: d, interval: interval, cancel: cancel, done: make(chan struct{})}

	// El id queda reservado mientras Open corre
	c.mu.Lock()
	if _, ok := c.workers[d.ID()]; ok {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, d.ID())
	}
	c.workers[d.ID()] = w
	c.mu.Unlock()

	if err := d.Open(ctx); err != nil {
		c.mu.Lock()
		if c.workers[d.ID()] == w {
			delete(c.workers, d.ID())
		}
		c.mu.Unlock()
		cancel()
		close(w.done)

		derr := &DeviceError{Device: d.ID(), Op: "open", Err: err}
		c.report(derr)
		return derr
	}

	go c.run(wctx, w)
	c.logger.Info("✅ [Device] Worker iniciado", "device", d.ID(), "interval", interval)
	return nil
}

// Stop detiene el worker y cierra el dispositivo
func (c *Controller) Stop(id string) error {
	c.mu.Lock()
	w, ok := c.workers[id]
	if ok {
		delete(c.workers, id)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	w.cancel()
	<-w.done
	if err := w.dev.Close(); err != nil {
		derr := &DeviceError{Device: id, Op: "close", Err: err}
		c.report(derr)
		return derr
	}
	c.logger.Info("🛑 [Device] Worker detenido", "device", id)
	return nil
}

// StopAll detiene todos los workers
func (c *Controller) StopAll() {
	for _, id := range c.IDs() {
		c.Stop(id)
	}
}

// IDs retorna los dispositivos activos
func (c *Controller) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.workers))
	for id := range c.workers {
		ids = append(ids, id)
	}
	return ids
}

// Stats retorna las estadísticas de un dispositivo
func (c *Controller) Stats(id string) (Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workers[id]
	if !ok {
		return Stats{}, false
	}
	return w.stats, true
}

// AddSink agrega un receptor para las muestras de id. Retorna la
// función que lo quita.
func (c *Controller) AddSink(id string, s Sink) (remove func()) {
	c.mu.Lock()
	c.sinks[id] = append(c.sinks[id], s)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.sinks[id]
		for i, other := range list {
			if other == s {
				c.sinks[id] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

func (c *Controller) run(ctx context.Context, w *worker) {
	defer close(w.done)

	var ticker *time.Ticker
	if w.interval > 0 {
		ticker = time.NewTicker(w.interval)
		defer ticker.Stop()
	}

	var seq uint64
	var last time.Time

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		s, err := w.dev.Grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.mu.Lock()
			w.stats.Errors++
			c.mu.Unlock()
			c.report(&DeviceError{Device: w.dev.ID(), Op: "grab", Err: err})

			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}

		now := time.Now()
		if s.Time.IsZero() {
			s.Time = now
		}
		s.DeviceID = w.dev.ID()
		s.Seq = seq
		seq++

		c.mu.Lock()
		if !last.IsZero() {
			if elapsed := now.Sub(last).Seconds(); elapsed > 0 {
				rate := 1 / elapsed
				if w.stats.FrameRate == 0 {
					w.stats.FrameRate = rate
				} else {
					w.stats.FrameRate = 0.8*w.stats.FrameRate + 0.2*rate
				}
			}
		}
		last = now
		w.stats.Frames++
		w.stats.LastFrame = now
		s.FrameRate = w.stats.FrameRate
		sinks := append([]Sink(nil), c.sinks[s.DeviceID]...)
		c.mu.Unlock()

		metrics.Frames.WithLabelValues(s.DeviceID).Inc()

		for _, sink := range sinks {
			if err := sink.WriteSample(s); err != nil {
				c.report(&DeviceError{Device: s.DeviceID, Op: "record", Err: err})
			}
		}

		if c.push(s) {
			c.mu.Lock()
			w.stats.Dropped++
			c.mu.Unlock()
			metrics.FramesDropped.WithLabelValues(s.DeviceID).Inc()
		}
	}
}

// push entrega s sin bloquear. Con la cola llena descarta la muestra
// más vieja; retorna true si algo se descartó.
func (c *Controller) push(s Sample) (dropped bool) {
	for {
		select {
		case c.out <- s:
			return dropped
		default:
		}
		select {
		case <-c.out:
			dropped = true
		default:
		}
	}
}

func (c *Controller) report(err *DeviceError) {
	metrics.DeviceErrors.WithLabelValues(err.Device).Inc()
	c.logger.Warn("⚠️  [Device] Error", "device", err.Device, "op", err.Op, "err", err.Err)
	if c.bus != nil {
		c.bus.Publish(eventbus.New(eventbus.EventDeviceError, eventbus.DeviceErrorData{
			Device: err.Device,
			Err:    err,
		}))
	}
}
