package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/flame-avsim/avsim-monitor/internal/scenario"
)

// ScenarioSelector es un dropdown con los archivos de escenario
// encontrados en el directorio configurado. Se despliega hacia arriba
// porque vive en la barra inferior.
type ScenarioSelector struct {
	x      float32
	y      float32
	width  float32
	height float32

	options       []scenario.ScenarioInfo
	selectedIndex int
	isOpen        bool
	hoveredIndex  int

	colorBg         color.RGBA
	colorBgHover    color.RGBA
	colorBorder     color.RGBA
	colorDropdownBg color.RGBA
}

// NewScenarioSelector crea un selector sin opciones
func NewScenarioSelector(x, y, width, height float32) *ScenarioSelector {
	return &ScenarioSelector{
		x:               x,
		y:               y,
		width:           width,
		height:          height,
		selectedIndex:   -1,
		hoveredIndex:    -1,
		colorBg:         color.RGBA{60, 60, 80, 255},
		colorBgHover:    color.RGBA{80, 80, 100, 255},
		colorBorder:     color.RGBA{100, 100, 120, 255},
		colorDropdownBg: color.RGBA{40, 40, 60, 255},
	}
}

// SetOptions reemplaza las opciones. Mantiene la selección si el
// archivo sigue existiendo.
func (ss *ScenarioSelector) SetOptions(options []scenario.ScenarioInfo) {
	prev := ss.SelectedPath()
	ss.options = options
	ss.selectedIndex = -1
	ss.isOpen = false
	for i, opt := range options {
		if opt.FilePath == prev {
			ss.selectedIndex = i
			return
		}
	}
	if len(options) > 0 {
		ss.selectedIndex = 0
	}
}

// optionY posición vertical de la opción i (hacia arriba del botón)
func (ss *ScenarioSelector) optionY(i int) float32 {
	reverseIndex := len(ss.options) - 1 - i
	return ss.y - float32(reverseIndex+1)*ss.height
}

func (ss *ScenarioSelector) optionAt(mx, my float32) int {
	if mx < ss.x || mx > ss.x+ss.width {
		return -1
	}
	for i := range ss.options {
		optY := ss.optionY(i)
		if my >= optY && my <= optY+ss.height {
			return i
		}
	}
	return -1
}

// Update procesa el mouse. changed es true cuando el usuario eligió
// otro archivo.
func (ss *ScenarioSelector) Update() (changed bool, path string) {
	mouseX, mouseY := ebiten.CursorPosition()
	mx, my := float32(mouseX), float32(mouseY)

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		if mx >= ss.x && mx <= ss.x+ss.width && my >= ss.y && my <= ss.y+ss.height {
			ss.isOpen = !ss.isOpen && len(ss.options) > 0
			return false, ""
		}

		if ss.isOpen {
			ss.isOpen = false
			if i := ss.optionAt(mx, my); i >= 0 && i != ss.selectedIndex {
				ss.selectedIndex = i
				return true, ss.options[i].FilePath
			}
		}
	}

	ss.hoveredIndex = -1
	if ss.isOpen {
		ss.hoveredIndex = ss.optionAt(mx, my)
	}
	return false, ""
}

// IsOpen true con el dropdown desplegado (tapa a los botones)
func (ss *ScenarioSelector) IsOpen() bool {
	return ss.isOpen
}

// Draw dibuja el selector
func (ss *ScenarioSelector) Draw(screen *ebiten.Image) {
	btnColor := ss.colorBg
	if ss.isOpen {
		btnColor = ss.colorBgHover
	}
	vector.DrawFilledRect(screen, ss.x, ss.y, ss.width, ss.height, btnColor, false)
	vector.StrokeRect(screen, ss.x, ss.y, ss.width, ss.height, 2, ss.colorBorder, false)

	label := "(sin escenarios)"
	if ss.selectedIndex >= 0 {
		label = ss.options[ss.selectedIndex].Name
	}
	arrow := "v"
	if ss.isOpen {
		arrow = "^"
	}
	maxChars := int((ss.width-30)/charWidth) - 2
	ebitenutil.DebugPrintAt(screen, truncate(label, maxChars)+" "+arrow, int(ss.x+10), int(ss.y+10))

	if !ss.isOpen {
		return
	}
	for i, opt := range ss.options {
		optY := ss.optionY(i)
		optColor := ss.colorDropdownBg
		if i == ss.hoveredIndex {
			optColor = ss.colorBgHover
		}
		vector.DrawFilledRect(screen, ss.x, optY, ss.width, ss.height, optColor, false)
		vector.StrokeRect(screen, ss.x, optY, ss.width, ss.height, 1, ss.colorBorder, false)

		prefix := "  "
		if i == ss.selectedIndex {
			prefix = "* "
		}
		ebitenutil.DebugPrintAt(screen, prefix+truncate(opt.Name, maxChars), int(ss.x+10), int(optY+10))
	}
}

// SelectedPath ruta del escenario elegido, "" si no hay
func (ss *ScenarioSelector) SelectedPath() string {
	if ss.selectedIndex < 0 || ss.selectedIndex >= len(ss.options) {
		return ""
	}
	return ss.options[ss.selectedIndex].FilePath
}

// SetSelected selecciona por ruta
func (ss *ScenarioSelector) SetSelected(path string) {
	for i, opt := range ss.options {
		if opt.FilePath == path {
			ss.selectedIndex = i
			return
		}
	}
}
