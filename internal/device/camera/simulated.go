// Package camera implementa las cámaras del monitor sobre device.Device:
// una cámara simulada (patrón de prueba), una cámara de red MJPEG, el
// registro de cámaras y el grabador de video por sesión.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/device"
)

// ErrNotOpen Grab sobre una cámara cerrada
var ErrNotOpen = errors.New("cámara no abierta")

// Simulated genera un patrón de barras con una franja que se desplaza,
// a la frecuencia configurada. Sirve sin hardware y en tests.
type Simulated struct {
	id     string
	width  int
	height int
	period time.Duration

	mu          sync.Mutex
	open        bool
	frameNumber int
	next        time.Time
}

// NewSimulated crea una cámara simulada
func NewSimulated(id string, width, height int, fps float64) *Simulated {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 240
	}
	if fps <= 0 {
		fps = 15
	}
	return &Simulated{
		id:     id,
		width:  width,
		height: height,
		period: time.Duration(float64(time.Second) / fps),
	}
}

func (cam *Simulated) ID() string { return cam.id }

// Open habilita la captura
func (cam *Simulated) Open(context.Context) error {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	cam.open = true
	cam.frameNumber = 0
	cam.next = time.Now()
	return nil
}

// Close deshabilita la captura
func (cam *Simulated) Close() error {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	cam.open = false
	return nil
}

// Grab espera al próximo frame según los fps y lo genera
func (cam *Simulated) Grab(ctx context.Context) (device.Sample, error) {
	cam.mu.Lock()
	if !cam.open {
		cam.mu.Unlock()
		return device.Sample{}, ErrNotOpen
	}
	wait := time.Until(cam.next)
	cam.next = cam.next.Add(cam.period)
	if wait < -cam.period {
		// Atrasado más de un frame: no intentar recuperar
		cam.next = time.Now().Add(cam.period)
	}
	n := cam.frameNumber
	cam.frameNumber++
	cam.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return device.Sample{}, ctx.Err()
		case <-time.After(wait):
		}
	}

	img := cam.generateFrame(n)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return device.Sample{}, fmt.Errorf("error codificando frame: %w", err)
	}

	return device.Sample{Time: time.Now(), Image: img, JPEG: buf.Bytes()}, nil
}

var bars = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// generateFrame dibuja barras de color y una franja blanca que avanza
// una columna de barras cada frame
func (cam *Simulated) generateFrame(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cam.width, cam.height))
	barW := cam.width / len(bars)
	if barW == 0 {
		barW = 1
	}
	stripe := (n * 4) % cam.height

	for y := 0; y < cam.height; y++ {
		for x := 0; x < cam.width; x++ {
			c := bars[(x/barW)%len(bars)]
			if y >= stripe && y < stripe+4 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
