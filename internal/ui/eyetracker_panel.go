package ui

import (
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
)

// EyetrackerPanel muestra el último estado del Neon
type EyetrackerPanel struct {
	x, y, width, height float32

	status   eventbus.EyetrackerStatusData
	hasData  bool
	lastSeen time.Time
	lastErr  string

	colorBg      color.RGBA
	colorBorder  color.RGBA
	colorOK      color.RGBA
	colorWarning color.RGBA
	colorRec     color.RGBA
}

// NewEyetrackerPanel crea el panel sin datos
func NewEyetrackerPanel(x, y, width, height float32) *EyetrackerPanel {
	return &EyetrackerPanel{
		x:            x,
		y:            y,
		width:        width,
		height:       height,
		colorBg:      color.RGBA{30, 30, 40, 255},
		colorBorder:  color.RGBA{80, 80, 100, 255},
		colorOK:      color.RGBA{100, 255, 100, 255},
		colorWarning: color.RGBA{255, 200, 100, 255},
		colorRec:     color.RGBA{255, 60, 60, 255},
	}
}

// Update guarda un estado nuevo
func (p *EyetrackerPanel) Update(status eventbus.EyetrackerStatusData, at time.Time) {
	p.status = status
	p.hasData = true
	p.lastSeen = at
	p.lastErr = ""
}

// SetError muestra el último error del dispositivo
func (p *EyetrackerPanel) SetError(err error) {
	if err != nil {
		p.lastErr = err.Error()
	}
}

// Draw dibuja el panel
func (p *EyetrackerPanel) Draw(screen *ebiten.Image) {
	vector.DrawFilledRect(screen, p.x, p.y, p.width, p.height, p.colorBg, false)
	vector.StrokeRect(screen, p.x, p.y, p.width, p.height, 2, p.colorBorder, false)
	ebitenutil.DebugPrintAt(screen, "EYE-TRACKER", int(p.x+10), int(p.y+8))

	lineY := int(p.y + 30)
	line := func(s string) {
		ebitenutil.DebugPrintAt(screen, truncate(s, int((p.width-20)/charWidth)), int(p.x+10), lineY)
		lineY += 18
	}

	if !p.hasData {
		line("Sin conexión")
		if p.lastErr != "" {
			line("Error: " + p.lastErr)
		}
		return
	}

	s := p.status
	line(fmt.Sprintf("Dispositivo: %s (%s)", s.Name, s.Address))

	battery := p.colorOK
	if s.BatteryLevel < 20 {
		battery = p.colorWarning
	}
	vector.DrawFilledRect(screen, p.x+10, float32(lineY)+3, 40*float32(s.BatteryLevel)/100, 10, battery, false)
	vector.StrokeRect(screen, p.x+10, float32(lineY)+3, 40, 10, 1, p.colorBorder, false)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%.0f%% %s", s.BatteryLevel, s.BatteryState), int(p.x+58), lineY)
	lineY += 18

	line(fmt.Sprintf("Almacenamiento libre: %.1f GB (%s)", s.FreeStorageGB, s.MemoryState))

	if s.Recording {
		vector.DrawFilledCircle(screen, p.x+16, float32(lineY)+8, 5, p.colorRec, false)
		ebitenutil.DebugPrintAt(screen, "Grabando", int(p.x+28), lineY)
	} else {
		ebitenutil.DebugPrintAt(screen, "En espera", int(p.x+28), lineY)
	}
	lineY += 18

	line("Actualizado: " + p.lastSeen.Format("15:04:05"))
	if p.lastErr != "" {
		line("Error: " + p.lastErr)
	}
}
