package ui

import (
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// Niveles de mensaje del log
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// LogEntry una línea del log de estado
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Level     string
}

// StatusLog es el log de estado en pantalla. Solo se usa desde el
// goroutine de la UI (Update/Draw), así que no lleva mutex.
type StatusLog struct {
	entries  []LogEntry // más reciente primero
	capacity int
	now      func() time.Time

	colorBg     color.RGBA
	colorBorder color.RGBA
	colors      map[string]color.RGBA
}

// NewStatusLog crea un log que guarda las últimas capacity líneas
func NewStatusLog(capacity int) *StatusLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &StatusLog{
		entries:     make([]LogEntry, 0, capacity),
		capacity:    capacity,
		now:         time.Now,
		colorBg:     color.RGBA{30, 30, 40, 255},
		colorBorder: color.RGBA{80, 80, 100, 255},
		colors: map[string]color.RGBA{
			LevelInfo:    {200, 200, 220, 255},
			LevelSuccess: {100, 255, 100, 255},
			LevelWarning: {255, 200, 100, 255},
			LevelError:   {255, 100, 100, 255},
		},
	}
}

// Add agrega una línea al principio del log
func (l *StatusLog) Add(level, message string) {
	entry := LogEntry{Timestamp: l.now(), Message: message, Level: level}
	l.entries = append([]LogEntry{entry}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Addf como Add con formato
func (l *StatusLog) Addf(level, format string, args ...interface{}) {
	l.Add(level, fmt.Sprintf(format, args...))
}

// Entries retorna las líneas, la más reciente primero
func (l *StatusLog) Entries() []LogEntry {
	return l.entries
}

// Clear vacía el log
func (l *StatusLog) Clear() {
	l.entries = l.entries[:0]
}

// Draw dibuja el log dentro del rectángulo dado
func (l *StatusLog) Draw(screen *ebiten.Image, x, y, width, height float32) {
	vector.DrawFilledRect(screen, x, y, width, height, l.colorBg, false)
	vector.StrokeRect(screen, x, y, width, height, 2, l.colorBorder, false)

	ebitenutil.DebugPrintAt(screen, "LOG DE ESTADO", int(x+10), int(y+8))

	if len(l.entries) == 0 {
		ebitenutil.DebugPrintAt(screen, "Sin eventos recientes", int(x+10), int(y+30))
		return
	}

	const lineHeight = 16
	maxLines := int((height - 35) / lineHeight)
	maxChars := int((width - 30) / charWidth)

	rowY := y + 30
	for i, e := range l.entries {
		if i >= maxLines {
			break
		}
		// Marca de nivel a la izquierda, el texto de debug es siempre blanco
		vector.DrawFilledRect(screen, x+6, rowY+3, 4, 10, l.colors[e.Level], false)
		line := truncate(e.Timestamp.Format("15:04:05")+" "+e.Message, maxChars)
		ebitenutil.DebugPrintAt(screen, line, int(x+16), int(rowY))
		rowY += lineHeight
	}
}

// charWidth ancho en píxeles de un carácter de la fuente de debug
const charWidth = 6

// truncate corta s a n runas agregando "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		if n > 0 && len(r) > n {
			return string(r[:n])
		}
		return s
	}
	return string(r[:n-3]) + "..."
}
