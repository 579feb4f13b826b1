package ui

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/flame-avsim/avsim-monitor/internal/device"
)

// staleAfter sin frames por este tiempo la cámara se muestra como
// detenida
const staleAfter = 3 * time.Second

// tile último frame de una cámara
type tile struct {
	id        string
	img       *ebiten.Image
	rgba      *image.RGBA // buffer reutilizado para WritePixels
	frameRate float64
	frames    uint64
	lastSeen  time.Time
}

// CameraTiles muestra una grilla con el último frame de cada cámara
type CameraTiles struct {
	x, y, width, height float32

	tiles map[string]*tile
	order []string
	now   func() time.Time

	colorBg     color.RGBA
	colorBorder color.RGBA
	colorStale  color.RGBA
}

// NewCameraTiles crea el panel vacío
func NewCameraTiles(x, y, width, height float32) *CameraTiles {
	return &CameraTiles{
		x:           x,
		y:           y,
		width:       width,
		height:      height,
		tiles:       make(map[string]*tile),
		now:         time.Now,
		colorBg:     color.RGBA{30, 30, 40, 255},
		colorBorder: color.RGBA{80, 80, 100, 255},
		colorStale:  color.RGBA{255, 100, 100, 255},
	}
}

// Update guarda el frame de la muestra. Solo desde el goroutine de la UI.
func (ct *CameraTiles) Update(s device.Sample) {
	if s.Image == nil {
		return
	}
	t, ok := ct.tiles[s.DeviceID]
	if !ok {
		t = &tile{id: s.DeviceID}
		ct.tiles[s.DeviceID] = t
		ct.order = append(ct.order, s.DeviceID)
		sort.Strings(ct.order)
	}
	t.frameRate = s.FrameRate
	t.frames++
	t.lastSeen = ct.now()

	b := s.Image.Bounds()
	if t.rgba == nil || t.rgba.Bounds().Size() != b.Size() {
		t.rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		if t.img != nil {
			t.img.Deallocate()
		}
		t.img = ebiten.NewImage(b.Dx(), b.Dy())
	}
	draw.Draw(t.rgba, t.rgba.Bounds(), s.Image, b.Min, draw.Src)
	t.img.WritePixels(t.rgba.Pix)
}

// Remove quita la cámara del panel
func (ct *CameraTiles) Remove(id string) {
	t, ok := ct.tiles[id]
	if !ok {
		return
	}
	if t.img != nil {
		t.img.Deallocate()
	}
	delete(ct.tiles, id)
	for i, o := range ct.order {
		if o == id {
			ct.order = append(ct.order[:i], ct.order[i+1:]...)
			break
		}
	}
}

// IDs cámaras con al menos un frame, ordenadas
func (ct *CameraTiles) IDs() []string {
	return append([]string(nil), ct.order...)
}

// FrameRate último frame rate conocido de la cámara id
func (ct *CameraTiles) FrameRate(id string) float64 {
	if t, ok := ct.tiles[id]; ok {
		return t.frameRate
	}
	return 0
}

// Draw dibuja la grilla
func (ct *CameraTiles) Draw(screen *ebiten.Image) {
	vector.DrawFilledRect(screen, ct.x, ct.y, ct.width, ct.height, ct.colorBg, false)
	vector.StrokeRect(screen, ct.x, ct.y, ct.width, ct.height, 2, ct.colorBorder, false)
	ebitenutil.DebugPrintAt(screen, "CÁMARAS", int(ct.x+10), int(ct.y+8))

	if len(ct.order) == 0 {
		ebitenutil.DebugPrintAt(screen, "Sin cámaras conectadas", int(ct.x+10), int(ct.y+30))
		return
	}

	cols, rows := gridSize(len(ct.order))
	areaY := ct.y + 26
	cellW := (ct.width - 10) / float32(cols)
	cellH := (ct.height - 32) / float32(rows)
	now := ct.now()

	for i, id := range ct.order {
		t := ct.tiles[id]
		cx := ct.x + 5 + float32(i%cols)*cellW
		cy := areaY + float32(i/cols)*cellH

		if t.img != nil {
			iw, ih := float32(t.img.Bounds().Dx()), float32(t.img.Bounds().Dy())
			scale := min((cellW-6)/iw, (cellH-22)/ih)
			op := &ebiten.DrawImageOptions{}
			op.GeoM.Scale(float64(scale), float64(scale))
			op.GeoM.Translate(float64(cx+3), float64(cy+3))
			screen.DrawImage(t.img, op)
		}
		vector.StrokeRect(screen, cx+2, cy+2, cellW-4, cellH-4, 1, ct.colorBorder, false)

		label := fmt.Sprintf("%s  %.1f fps", id, t.frameRate)
		if now.Sub(t.lastSeen) > staleAfter {
			label = id + "  sin señal"
			vector.DrawFilledRect(screen, cx+4, cy+cellH-18, 6, 10, ct.colorStale, false)
		}
		ebitenutil.DebugPrintAt(screen, label, int(cx+14), int(cy+cellH-20))
	}
}

// gridSize columnas y filas para n tiles
func gridSize(n int) (cols, rows int) {
	if n <= 0 {
		return 1, 1
	}
	cols = 1
	for cols*cols < n {
		cols++
	}
	rows = (n + cols - 1) / cols
	return cols, rows
}
