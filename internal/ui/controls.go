package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// Action es lo que pide un botón de la barra de controles
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionStart
	ActionPause
	ActionStop
	ActionNewSubject
	ActionConnectCameras
	ActionRecord
)

// Button botón rectangular con texto
type Button struct {
	Label   string
	Action  Action
	Enabled bool

	x, y, w, h float32
}

func (b *Button) contains(mx, my float32) bool {
	return mx >= b.x && mx <= b.x+b.w && my >= b.y && my <= b.y+b.h
}

// Controls es la barra inferior: selector de escenario y botones
type Controls struct {
	panelY   float32
	width    float32
	selector *ScenarioSelector
	buttons  []*Button
	hovered  *Button

	colorBg       color.Color
	colorBorder   color.Color
	colorButton   color.RGBA
	colorHover    color.RGBA
	colorDisabled color.RGBA
}

// NewControls arma la barra para una ventana de width x height
func NewControls(width, height int) *Controls {
	panelY := float32(height) - 60
	c := &Controls{
		panelY:        panelY,
		width:         float32(width),
		selector:      NewScenarioSelector(10, panelY+12, 300, 36),
		colorBg:       color.RGBA{30, 30, 40, 230},
		colorBorder:   color.RGBA{100, 100, 120, 255},
		colorButton:   color.RGBA{60, 60, 80, 255},
		colorHover:    color.RGBA{80, 80, 110, 255},
		colorDisabled: color.RGBA{40, 40, 45, 255},
	}

	labels := []struct {
		label  string
		action Action
	}{
		{"Abrir", ActionOpen},
		{"Iniciar", ActionStart},
		{"Pausa", ActionPause},
		{"Detener", ActionStop},
		{"Nuevo sujeto", ActionNewSubject},
		{"Grabar", ActionRecord},
		{"Conectar cámaras", ActionConnectCameras},
	}
	x := float32(320)
	for _, l := range labels {
		w := float32(len([]rune(l.label))*charWidth + 24)
		c.buttons = append(c.buttons, &Button{
			Label: l.label, Action: l.action, Enabled: true,
			x: x, y: panelY + 12, w: w, h: 36,
		})
		x += w + 8
	}
	return c
}

// Selector el dropdown de escenarios
func (c *Controls) Selector() *ScenarioSelector {
	return c.selector
}

// Button retorna el botón de la acción dada
func (c *Controls) Button(a Action) *Button {
	for _, b := range c.buttons {
		if b.Action == a {
			return b
		}
	}
	return nil
}

// SetEnabled habilita o deshabilita el botón de una acción
func (c *Controls) SetEnabled(a Action, enabled bool) {
	if b := c.Button(a); b != nil {
		b.Enabled = enabled
	}
}

// Update procesa el mouse y retorna la acción pedida, si hubo una
func (c *Controls) Update() Action {
	wasOpen := c.selector.IsOpen()
	if changed, _ := c.selector.Update(); changed {
		return ActionNone
	}
	if wasOpen || c.selector.IsOpen() {
		c.hovered = nil
		return ActionNone
	}

	mouseX, mouseY := ebiten.CursorPosition()
	mx, my := float32(mouseX), float32(mouseY)

	c.hovered = nil
	for _, b := range c.buttons {
		if b.Enabled && b.contains(mx, my) {
			c.hovered = b
			break
		}
	}
	if c.hovered != nil && inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		return c.hovered.Action
	}
	return ActionNone
}

// Draw dibuja la barra
func (c *Controls) Draw(screen *ebiten.Image) {
	vector.DrawFilledRect(screen, 0, c.panelY, c.width, 60, c.colorBg, false)
	vector.StrokeLine(screen, 0, c.panelY, c.width, c.panelY, 2, c.colorBorder, false)

	for _, b := range c.buttons {
		bg := c.colorButton
		switch {
		case !b.Enabled:
			bg = c.colorDisabled
		case b == c.hovered:
			bg = c.colorHover
		}
		vector.DrawFilledRect(screen, b.x, b.y, b.w, b.h, bg, false)
		vector.StrokeRect(screen, b.x, b.y, b.w, b.h, 1, c.colorBorder, false)
		ebitenutil.DebugPrintAt(screen, b.Label, int(b.x+12), int(b.y+10))
	}

	// el dropdown se dibuja último para quedar encima
	c.selector.Draw(screen)
}

// SubjectInput es el cuadro de texto modal para el id del nuevo sujeto
type SubjectInput struct {
	active bool
	text   []rune
	limit  int
}

// NewSubjectInput crea el cuadro cerrado
func NewSubjectInput() *SubjectInput {
	return &SubjectInput{limit: 32}
}

// Open muestra el cuadro vacío
func (s *SubjectInput) Open() {
	s.active = true
	s.text = s.text[:0]
}

// Active true mientras el cuadro captura el teclado
func (s *SubjectInput) Active() bool {
	return s.active
}

// Update lee el teclado. Retorna el id ingresado cuando se confirma con
// Enter; Escape cancela.
func (s *SubjectInput) Update() (id string, confirmed bool) {
	if !s.active {
		return "", false
	}
	for _, r := range ebiten.AppendInputChars(nil) {
		s.append(r)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		s.backspace()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		s.active = false
		return "", false
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeyNumpadEnter) {
		s.active = false
		return string(s.text), len(s.text) > 0
	}
	return "", false
}

func (s *SubjectInput) append(r rune) {
	if len(s.text) >= s.limit || r < ' ' {
		return
	}
	s.text = append(s.text, r)
}

func (s *SubjectInput) backspace() {
	if len(s.text) > 0 {
		s.text = s.text[:len(s.text)-1]
	}
}

// Draw dibuja el cuadro centrado
func (s *SubjectInput) Draw(screen *ebiten.Image) {
	if !s.active {
		return
	}
	w, h := float32(screen.Bounds().Dx()), float32(screen.Bounds().Dy())
	boxW, boxH := float32(360), float32(90)
	x, y := (w-boxW)/2, (h-boxH)/2

	vector.DrawFilledRect(screen, 0, 0, w, h, color.RGBA{0, 0, 0, 140}, false)
	vector.DrawFilledRect(screen, x, y, boxW, boxH, color.RGBA{40, 40, 60, 255}, false)
	vector.StrokeRect(screen, x, y, boxW, boxH, 2, color.RGBA{100, 100, 120, 255}, false)
	ebitenutil.DebugPrintAt(screen, "ID del nuevo sujeto (Enter / Esc):", int(x+12), int(y+12))
	vector.DrawFilledRect(screen, x+12, y+40, boxW-24, 28, color.RGBA{20, 20, 30, 255}, false)
	ebitenutil.DebugPrintAt(screen, string(s.text)+"_", int(x+18), int(y+46))
}
