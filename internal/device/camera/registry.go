package camera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/device"
)

// ErrUnknownKind tipo de cámara no soportado
var ErrUnknownKind = errors.New("tipo de cámara desconocido")

// Entry es una cámara registrada con su configuración
type Entry struct {
	Config   config.CameraConfig
	Device   device.Device
	Interval time.Duration // 0: la cámara marca el ritmo
}

// Registry es el dueño explícito de las cámaras del monitor. Lo crea la
// aplicación y se lo pasa a quien lo necesite.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*Entry
}

// NewRegistry crea un registro vacío
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]*Entry)}
}

// FromConfig crea el registro a partir de la configuración. Las cámaras
// inválidas se omiten y se retornan como DeviceError.
func FromConfig(cfgs []config.CameraConfig) (*Registry, []error) {
	r := NewRegistry()
	var errs []error
	for _, cc := range cfgs {
		dev, err := New(cc)
		if err != nil {
			errs = append(errs, &device.DeviceError{Device: DeviceID(cc.ID), Op: "open", Err: err})
			continue
		}
		if err := r.Register(cc, dev); err != nil {
			errs = append(errs, err)
		}
	}
	return r, errs
}

// New construye el device para una configuración
func New(cc config.CameraConfig) (device.Device, error) {
	id := DeviceID(cc.ID)
	switch cc.Kind {
	case "", "simulated":
		return NewSimulated(id, cc.Width, cc.Height, cc.FPS), nil
	case "mjpeg":
		if cc.URL == "" {
			return nil, fmt.Errorf("cámara %d: url requerida para mjpeg", cc.ID)
		}
		return NewMJPEG(id, cc.URL, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cc.Kind)
	}
}

// DeviceID nombre de dispositivo de una cámara
func DeviceID(id int) string {
	return "cam" + strconv.Itoa(id)
}

// Register agrega una cámara
func (r *Registry) Register(cc config.CameraConfig, dev device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[cc.ID]; ok {
		return fmt.Errorf("cámara %d ya registrada", cc.ID)
	}
	r.entries[cc.ID] = &Entry{Config: cc, Device: dev}
	return nil
}

// Get retorna una cámara por id
func (r *Registry) Get(id int) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// All retorna las cámaras ordenadas por id
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.ID < out[j].Config.ID })
	return out
}

// Len cantidad de cámaras
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// StartAll lanza un worker por cámara en el controlador. Las que no
// abren se reportan y se omiten.
func (r *Registry) StartAll(ctx context.Context, c *device.Controller) []error {
	var errs []error
	for _, e := range r.All() {
		if err := c.Start(ctx, e.Device, e.Interval); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// StopAll detiene los workers de todas las cámaras
func (r *Registry) StopAll(c *device.Controller) {
	for _, e := range r.All() {
		c.Stop(e.Device.ID())
	}
}
