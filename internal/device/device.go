// Package device define la interfaz común de los dispositivos de captura
// (cámaras, eye-tracker) y el controlador que los corre en workers.
package device

import (
	"context"
	"fmt"
	"image"
	"time"
)

// Device es la capacidad mínima de un dispositivo: abrir, cerrar y
// obtener una muestra. Grab puede bloquear hasta que haya una muestra
// disponible; debe respetar ctx.
type Device interface {
	ID() string
	Open(ctx context.Context) error
	Close() error
	Grab(ctx context.Context) (Sample, error)
}

// Sample es lo que produce un Grab
type Sample struct {
	DeviceID  string
	Seq       uint64
	Time      time.Time
	Image     image.Image // frame decodificado, nil para dispositivos sin imagen
	JPEG      []byte      // frame codificado tal como se graba
	Data      interface{} // estado de dispositivos sin imagen (eye-tracker)
	FrameRate float64     // calculado por el Controller
}

// DeviceError envuelve una falla del dispositivo o su SDK
type DeviceError struct {
	Device string
	Op     string // "open", "grab", "close"
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("dispositivo %s (%s): %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Sink recibe cada muestra de un dispositivo desde su worker
type Sink interface {
	WriteSample(s Sample) error
}
