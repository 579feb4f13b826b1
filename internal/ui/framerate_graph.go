package ui

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// FrameRateGraph grafica el frame rate de cada dispositivo en el tiempo
type FrameRateGraph struct {
	x, y, width, height float32

	maxPoints int
	maxRate   float32
	history   map[string][]float32

	colorBg     color.RGBA
	colorBorder color.RGBA
	colorGrid   color.RGBA
	palette     []color.RGBA
}

// NewFrameRateGraph crea una gráfica de maxPoints muestras por dispositivo
func NewFrameRateGraph(x, y, width, height float32, maxPoints int) *FrameRateGraph {
	return &FrameRateGraph{
		x:           x,
		y:           y,
		width:       width,
		height:      height,
		maxPoints:   maxPoints,
		maxRate:     30,
		history:     make(map[string][]float32),
		colorBg:     color.RGBA{30, 30, 40, 255},
		colorBorder: color.RGBA{80, 80, 100, 255},
		colorGrid:   color.RGBA{50, 50, 60, 255},
		palette: []color.RGBA{
			{100, 200, 255, 255},
			{255, 180, 80, 255},
			{120, 255, 140, 255},
			{255, 110, 180, 255},
		},
	}
}

// Add agrega un punto para el dispositivo id
func (g *FrameRateGraph) Add(id string, rate float64) {
	h := append(g.history[id], float32(rate))
	if len(h) > g.maxPoints {
		h = h[len(h)-g.maxPoints:]
	}
	g.history[id] = h

	// la escala crece de a 10 fps
	for float32(rate) > g.maxRate {
		g.maxRate += 10
	}
}

// Series puntos guardados para id
func (g *FrameRateGraph) Series(id string) []float32 {
	return g.history[id]
}

// Remove borra la serie del dispositivo
func (g *FrameRateGraph) Remove(id string) {
	delete(g.history, id)
}

// Clear limpia la gráfica
func (g *FrameRateGraph) Clear() {
	g.history = make(map[string][]float32)
}

// Draw dibuja la gráfica
func (g *FrameRateGraph) Draw(screen *ebiten.Image) {
	vector.DrawFilledRect(screen, g.x, g.y, g.width, g.height, g.colorBg, false)
	vector.StrokeRect(screen, g.x, g.y, g.width, g.height, 2, g.colorBorder, false)
	ebitenutil.DebugPrintAt(screen, "FRAME RATE (fps)", int(g.x+10), int(g.y+5))

	graphY := g.y + 25
	graphHeight := g.height - 30
	for rate := float32(0); rate <= g.maxRate; rate += 10 {
		lineY := graphY + graphHeight*(1-rate/g.maxRate)
		vector.StrokeLine(screen, g.x+30, lineY, g.x+g.width, lineY, 1, g.colorGrid, false)
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%d", int(rate)), int(g.x+5), int(lineY-8))
	}

	ids := make([]string, 0, len(g.history))
	for id := range g.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	spacing := (g.width - 40) / float32(max(g.maxPoints-1, 1))
	for n, id := range ids {
		c := g.palette[n%len(g.palette)]
		h := g.history[id]
		for i := 0; i+1 < len(h); i++ {
			x1 := g.x + 35 + float32(i)*spacing
			x2 := x1 + spacing
			y1 := graphY + graphHeight*(1-min(h[i]/g.maxRate, 1))
			y2 := graphY + graphHeight*(1-min(h[i+1]/g.maxRate, 1))
			vector.StrokeLine(screen, x1, y1, x2, y2, 2, c, false)
		}

		// leyenda arriba a la derecha
		legendX := g.x + g.width - 120
		legendY := g.y + 5 + float32(n)*14
		vector.DrawFilledRect(screen, legendX, legendY+4, 8, 8, c, false)
		last := float32(0)
		if len(h) > 0 {
			last = h[len(h)-1]
		}
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s %.1f", id, last), int(legendX+12), int(legendY))
	}
}
