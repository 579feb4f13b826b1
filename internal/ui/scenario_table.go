package ui

import (
	"fmt"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/flame-avsim/avsim-monitor/internal/scenario"
)

const rowHeight = 18

// ScenarioTable muestra los eventos del escenario cargado (tiempo, MAPI,
// mensaje) y resalta el bucket que acaba de emitirse.
type ScenarioTable struct {
	x, y, width, height float32

	rows   []scenario.Event
	source string
	due    int64 // clave en décimas del último bucket emitido, -1 si ninguno
	scroll int   // primera fila visible
	follow bool  // el scroll sigue al bucket emitido

	colorBg        color.RGBA
	colorBorder    color.RGBA
	colorHeader    color.RGBA
	colorHighlight color.RGBA
	colorProgress  color.RGBA
}

// NewScenarioTable crea una tabla vacía
func NewScenarioTable(x, y, width, height float32) *ScenarioTable {
	return &ScenarioTable{
		x:              x,
		y:              y,
		width:          width,
		height:         height,
		due:            -1,
		follow:         true,
		colorBg:        color.RGBA{30, 30, 40, 255},
		colorBorder:    color.RGBA{80, 80, 100, 255},
		colorHeader:    color.RGBA{50, 50, 70, 255},
		colorHighlight: color.RGBA{0, 120, 70, 255},
		colorProgress:  color.RGBA{0, 200, 100, 255},
	}
}

// SetSchedule reemplaza las filas con las del schedule (nil limpia)
func (t *ScenarioTable) SetSchedule(s *scenario.Schedule, source string) {
	t.rows = s.Rows()
	t.source = source
	t.due = -1
	t.scroll = 0
	t.follow = true
}

// MarkDue resalta las filas del bucket time
func (t *ScenarioTable) MarkDue(time float64) {
	t.due = tenths(time)
	if t.follow {
		if first := t.firstRow(t.due); first >= 0 {
			t.scroll = scrollWindow(len(t.rows), t.visibleRows(), first)
		}
	}
}

// ClearDue quita el resaltado (escenario detenido o terminado)
func (t *ScenarioTable) ClearDue() {
	t.due = -1
}

// Scroll mueve la vista delta filas; mover a mano deja de seguir al cursor
// hasta el próximo Start.
func (t *ScenarioTable) Scroll(delta int) {
	if delta == 0 {
		return
	}
	t.follow = false
	t.scroll = clamp(t.scroll+delta, 0, max(0, len(t.rows)-t.visibleRows()))
}

// Follow vuelve a seguir al bucket emitido
func (t *ScenarioTable) Follow() {
	t.follow = true
}

// Highlighted índices de las filas resaltadas
func (t *ScenarioTable) Highlighted() []int {
	var out []int
	for i, r := range t.rows {
		if tenths(r.Time) == t.due {
			out = append(out, i)
		}
	}
	return out
}

func (t *ScenarioTable) firstRow(key int64) int {
	for i, r := range t.rows {
		if tenths(r.Time) == key {
			return i
		}
	}
	return -1
}

func (t *ScenarioTable) visibleRows() int {
	n := int((t.height - 70) / rowHeight)
	if n < 1 {
		return 1
	}
	return n
}

// Draw dibuja la tabla y la barra de progreso del escenario
func (t *ScenarioTable) Draw(screen *ebiten.Image, snap scenario.Snapshot) {
	vector.DrawFilledRect(screen, t.x, t.y, t.width, t.height, t.colorBg, false)
	vector.StrokeRect(screen, t.x, t.y, t.width, t.height, 2, t.colorBorder, false)

	title := "ESCENARIO"
	if t.source != "" {
		title += ": " + t.source
	}
	ebitenutil.DebugPrintAt(screen, truncate(title, int((t.width-20)/charWidth)), int(t.x+10), int(t.y+8))

	// Cabecera
	headerY := t.y + 28
	vector.DrawFilledRect(screen, t.x+2, headerY, t.width-4, rowHeight, t.colorHeader, false)
	timeX, mapiX, msgX := t.x+10, t.x+80, t.x+t.width*0.45
	ebitenutil.DebugPrintAt(screen, "Tiempo", int(timeX), int(headerY+1))
	ebitenutil.DebugPrintAt(screen, "MAPI", int(mapiX), int(headerY+1))
	ebitenutil.DebugPrintAt(screen, "Mensaje", int(msgX), int(headerY+1))

	if len(t.rows) == 0 {
		ebitenutil.DebugPrintAt(screen, "Sin escenario cargado", int(t.x+10), int(headerY+rowHeight+6))
	}

	mapiChars := int((msgX - mapiX - 8) / charWidth)
	msgChars := int((t.x + t.width - msgX - 10) / charWidth)

	rowY := headerY + rowHeight + 2
	end := min(len(t.rows), t.scroll+t.visibleRows())
	for i := t.scroll; i < end; i++ {
		r := t.rows[i]
		if tenths(r.Time) == t.due {
			vector.DrawFilledRect(screen, t.x+2, rowY, t.width-4, rowHeight, t.colorHighlight, false)
		}
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%7.1f", r.Time), int(timeX), int(rowY+1))
		ebitenutil.DebugPrintAt(screen, truncate(r.RoutingKey, mapiChars), int(mapiX), int(rowY+1))
		ebitenutil.DebugPrintAt(screen, truncate(r.Message, msgChars), int(msgX), int(rowY+1))
		rowY += rowHeight
	}

	t.drawProgress(screen, snap)
}

func (t *ScenarioTable) drawProgress(screen *ebiten.Image, snap scenario.Snapshot) {
	barX, barY := t.x+10, t.y+t.height-30
	barW := t.width - 20

	progress := float32(0)
	if snap.EndTime > 0 {
		progress = float32(math.Min(snap.Cursor/snap.EndTime, 1))
	}
	vector.DrawFilledRect(screen, barX, barY, barW*progress, 8, t.colorProgress, false)
	vector.StrokeRect(screen, barX, barY, barW, 8, 1, t.colorBorder, false)

	text := fmt.Sprintf("%s  %.1f / %.1f s  (%d eventos)", snap.State, snap.Cursor, snap.EndTime, snap.Events)
	ebitenutil.DebugPrintAt(screen, text, int(barX), int(barY+10))
}

// tenths convierte segundos a la clave entera de bucket
func tenths(t float64) int64 {
	return int64(math.Round(t * 10))
}

// scrollWindow primera fila visible para que focus quede a la vista con
// algo de contexto por encima
func scrollWindow(total, visible, focus int) int {
	if total <= visible {
		return 0
	}
	start := focus - visible/4
	return clamp(start, 0, total-visible)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
