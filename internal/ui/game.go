// Package ui es la ventana del monitor (ebiten): tabla del escenario,
// cámaras, eye-tracker, log de estado y controles.
package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/device"
	"github.com/flame-avsim/avsim-monitor/internal/device/eyetracker"
	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
	"github.com/flame-avsim/avsim-monitor/internal/scenario"
	"github.com/flame-avsim/avsim-monitor/internal/session"
)

// maxSamplesPerFrame tope de muestras procesadas por Update para no
// trabar el frame si la cola viene llena
const maxSamplesPerFrame = 32

// Cameras conecta las cámaras configuradas
type Cameras interface {
	ConnectCameras(ctx context.Context) []error
}

// Deps lo que la ventana necesita del resto del monitor
type Deps struct {
	Config   *config.Config
	Bus      *eventbus.EventBus
	Runner   *scenario.Runner
	Sessions *session.Manager
	Samples  <-chan device.Sample
	Cameras  Cameras
}

// Game implementa ebiten.Game. Todo su estado se toca solo desde
// Update/Draw, que ebiten llama en el mismo goroutine.
type Game struct {
	ctx    context.Context
	deps   Deps
	logger *slog.Logger
	width  int
	height int

	// Componentes UI
	table    *ScenarioTable
	tiles    *CameraTiles
	graph    *FrameRateGraph
	eyePanel *EyetrackerPanel
	log      *StatusLog
	controls *Controls
	subject  *SubjectInput

	// Estado
	connected   bool
	broker      string
	sess        eventbus.SessionData
	rates       map[string]float64
	lastGraph   time.Time
	lastDevErrs map[string]string

	// Suscripciones al bus
	dueEvents      <-chan eventbus.Event
	stateEvents    <-chan eventbus.Event
	finishedEvents <-chan eventbus.Event
	loadedEvents   <-chan eventbus.Event
	busEvents      <-chan eventbus.Event
	deviceEvents   <-chan eventbus.Event
	sessionEvents  <-chan eventbus.Event
	statusEvents   <-chan eventbus.Event
}

// NewGame crea la ventana. Cuando ctx se cancela Update termina el loop
// de ebiten.
func NewGame(ctx context.Context, deps Deps) *Game {
	w, h := deps.Config.UI.Window.Width, deps.Config.UI.Window.Height
	fw, fh := float32(w), float32(h)
	half := fw/2 - 15

	g := &Game{
		ctx:         ctx,
		deps:        deps,
		logger:      slog.Default().With("component", "ui"),
		width:       w,
		height:      h,
		table:       NewScenarioTable(10, 40, half, fh*0.58),
		tiles:       NewCameraTiles(fw/2+5, 40, half, fh*0.38),
		graph:       NewFrameRateGraph(fw/2+5, 50+fh*0.38, half, fh*0.20-10, 120),
		eyePanel:    NewEyetrackerPanel(fw/2+5, 50+fh*0.58, half, fh*0.42-120),
		log:         NewStatusLog(200),
		controls:    NewControls(w, h),
		subject:     NewSubjectInput(),
		broker:      deps.Config.MQTT.Broker,
		rates:       make(map[string]float64),
		lastDevErrs: make(map[string]string),
	}

	g.subscribeToEvents()
	g.rescan()
	if sched := deps.Runner.Schedule(); sched != nil {
		g.table.SetSchedule(sched, deps.Runner.Snapshot().Source)
	}
	g.log.Add(LevelInfo, "Monitor iniciado ("+deps.Config.AppID+")")
	return g
}

// subscribeToEvents suscribe a eventos del bus. Los canales se vacían en
// Update, sin goroutines intermedias.
func (g *Game) subscribeToEvents() {
	bus := g.deps.Bus
	g.dueEvents = bus.SubscribeBuffered(eventbus.EventScenarioDue, 256)
	g.stateEvents = bus.Subscribe(eventbus.EventScenarioState)
	g.finishedEvents = bus.Subscribe(eventbus.EventScenarioFinished)
	g.loadedEvents = bus.Subscribe(eventbus.EventScenarioLoaded)
	g.busEvents = bus.Subscribe(eventbus.EventBusStatus)
	g.deviceEvents = bus.SubscribeBuffered(eventbus.EventDeviceError, 64)
	g.sessionEvents = bus.Subscribe(eventbus.EventSession)
	g.statusEvents = bus.SubscribeBuffered(eventbus.EventStatus, 64)
}

// rescan vuelve a listar los archivos de escenario
func (g *Game) rescan() {
	found := scenario.DiscoverScenarios(g.deps.Config.Scenario.Directory)
	g.controls.Selector().SetOptions(found)
}

// Update actualiza la lógica (ebiten, 60 TPS)
func (g *Game) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}

	g.drainEvents()
	g.drainSamples()
	g.sampleGraph()

	if g.subject.Active() {
		if id, ok := g.subject.Update(); ok {
			g.newSubject(id)
		}
		return nil
	}

	if _, dy := ebiten.Wheel(); dy != 0 {
		g.table.Scroll(-int(dy * 3))
	}

	g.updateButtons()
	g.handleAction(g.controls.Update())
	return nil
}

func (g *Game) drainEvents() {
	for {
		select {
		case ev := <-g.dueEvents:
			g.handleDue(ev)
		case ev := <-g.stateEvents:
			g.handleState(ev)
		case ev := <-g.finishedEvents:
			g.handleFinished(ev)
		case ev := <-g.loadedEvents:
			g.handleLoaded(ev)
		case ev := <-g.busEvents:
			g.handleBusStatus(ev)
		case ev := <-g.deviceEvents:
			g.handleDeviceError(ev)
		case ev := <-g.sessionEvents:
			g.handleSession(ev)
		case ev := <-g.statusEvents:
			if data, ok := ev.Data.(eventbus.StatusData); ok {
				g.log.Add(data.Level, data.Message)
			}
		default:
			return
		}
	}
}

func (g *Game) drainSamples() {
	if g.deps.Samples == nil {
		return
	}
	for i := 0; i < maxSamplesPerFrame; i++ {
		select {
		case s := <-g.deps.Samples:
			g.handleSample(s)
		default:
			return
		}
	}
}

// sampleGraph agrega un punto por dispositivo cada segundo
func (g *Game) sampleGraph() {
	now := time.Now()
	if now.Sub(g.lastGraph) < time.Second {
		return
	}
	g.lastGraph = now
	for id, rate := range g.rates {
		g.graph.Add(id, rate)
	}
}

func (g *Game) handleSample(s device.Sample) {
	g.rates[s.DeviceID] = s.FrameRate
	delete(g.lastDevErrs, s.DeviceID)

	if status, ok := s.Data.(eventbus.EyetrackerStatusData); ok {
		g.eyePanel.Update(status, s.Time)
		return
	}
	g.tiles.Update(s)
}

func (g *Game) handleDue(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.ScenarioDueData)
	if !ok {
		return
	}
	g.table.MarkDue(data.Time)
}

func (g *Game) handleState(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.ScenarioStateData)
	if !ok {
		return
	}
	if data.State == scenario.Stopped.String() {
		g.table.ClearDue()
	}
	g.log.Addf(LevelInfo, "Escenario %s (%.1f s)", data.State, data.Cursor)
}

func (g *Game) handleFinished(ev eventbus.Event) {
	g.table.ClearDue()
	g.log.Add(LevelSuccess, "Escenario terminado")
}

func (g *Game) handleLoaded(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.ScenarioLoadedData)
	if !ok {
		return
	}
	if data.Err != nil {
		g.table.SetSchedule(nil, "")
		g.log.Addf(LevelError, "Error cargando %s: %v", filepath.Base(data.Source), data.Err)
		return
	}
	g.table.SetSchedule(g.deps.Runner.Schedule(), filepath.Base(data.Source))
	g.log.Addf(LevelSuccess, "Escenario cargado: %s (%d eventos, %.1f s)", filepath.Base(data.Source), data.Events, data.EndTime)
}

func (g *Game) handleBusStatus(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.BusStatusData)
	if !ok {
		return
	}
	g.connected = data.Connected
	if data.Broker != "" {
		g.broker = data.Broker
	}
	if data.Connected {
		g.log.Add(LevelSuccess, "MQTT conectado a "+g.broker)
		return
	}
	msg := "MQTT desconectado"
	if data.Err != nil {
		msg += ": " + data.Err.Error()
	}
	g.log.Add(LevelWarning, msg)
}

func (g *Game) handleDeviceError(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.DeviceErrorData)
	if !ok || data.Err == nil {
		return
	}
	if data.Device == eyetracker.DeviceID {
		g.eyePanel.SetError(data.Err)
	}
	// el mismo error repetido en cada grab solo se muestra una vez
	msg := data.Err.Error()
	if g.lastDevErrs[data.Device] == msg {
		return
	}
	g.lastDevErrs[data.Device] = msg
	g.log.Addf(LevelError, "%s: %s", data.Device, msg)
}

func (g *Game) handleSession(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.SessionData)
	if !ok {
		return
	}
	if data.Subject != g.sess.Subject {
		g.log.Add(LevelInfo, "Sujeto "+data.Subject+" en "+data.Workspace)
	}
	if data.Recording != g.sess.Recording {
		if data.Recording {
			g.log.Add(LevelSuccess, "Grabación iniciada")
		} else {
			g.log.Add(LevelInfo, "Grabación detenida")
		}
	}
	g.sess = data
}

// updateButtons habilita los botones según el estado actual
func (g *Game) updateButtons() {
	snap := g.deps.Runner.Snapshot()
	hasSchedule := snap.Events > 0
	g.controls.SetEnabled(ActionStart, hasSchedule && snap.State != scenario.Running)
	g.controls.SetEnabled(ActionPause, snap.State == scenario.Running)
	g.controls.SetEnabled(ActionStop, snap.State != scenario.Stopped)
	g.controls.SetEnabled(ActionOpen, snap.State == scenario.Stopped)
	g.controls.SetEnabled(ActionRecord, g.sess.Subject != "")
	g.controls.SetEnabled(ActionConnectCameras, g.deps.Cameras != nil)

	if b := g.controls.Button(ActionRecord); b != nil {
		b.Label = "Grabar"
		if g.sess.Recording {
			b.Label = "Cortar"
		}
	}
}

func (g *Game) handleAction(a Action) {
	switch a {
	case ActionOpen:
		g.openSelected()
	case ActionStart:
		g.table.Follow()
		if err := g.deps.Runner.Start(); err != nil {
			g.log.Add(LevelError, err.Error())
		}
	case ActionPause:
		g.deps.Runner.Pause()
	case ActionStop:
		g.deps.Runner.Stop()
	case ActionNewSubject:
		g.subject.Open()
	case ActionRecord:
		g.toggleRecording()
	case ActionConnectCameras:
		g.connectCameras()
	}
}

func (g *Game) openSelected() {
	g.rescan()
	path := g.controls.Selector().SelectedPath()
	if path == "" {
		g.log.Add(LevelWarning, "No hay escenarios en "+g.deps.Config.Scenario.Directory)
		return
	}
	// el resultado llega por EventScenarioLoaded
	_ = g.deps.Runner.LoadFile(path)
}

func (g *Game) newSubject(id string) {
	if g.deps.Sessions == nil {
		return
	}
	if _, err := g.deps.Sessions.NewSubject(g.ctx, id); err != nil {
		g.log.Add(LevelError, err.Error())
	}
}

func (g *Game) toggleRecording() {
	if g.deps.Sessions == nil {
		return
	}
	var err error
	if g.deps.Sessions.Snapshot().Recording {
		err = g.deps.Sessions.StopRecording(g.ctx)
	} else {
		err = g.deps.Sessions.StartRecording(g.ctx)
	}
	if err != nil {
		g.log.Add(LevelError, err.Error())
	}
}

func (g *Game) connectCameras() {
	errs := g.deps.Cameras.ConnectCameras(g.ctx)
	for _, err := range errs {
		var devErr *device.DeviceError
		if errors.As(err, &devErr) {
			g.lastDevErrs[devErr.Device] = devErr.Err.Error()
		}
		g.log.Add(LevelError, err.Error())
	}
	if len(errs) == 0 {
		g.log.Add(LevelSuccess, "Cámaras conectadas")
	}
}

// Draw dibuja la ventana (ebiten, 60 FPS)
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{20, 20, 30, 255})

	g.drawStatusBar(screen)
	g.table.Draw(screen, g.deps.Runner.Snapshot())
	g.tiles.Draw(screen)
	g.graph.Draw(screen)
	g.eyePanel.Draw(screen)

	fw, fh := float32(g.width), float32(g.height)
	logY := 50 + fh*0.58
	g.log.Draw(screen, 10, logY, fw/2-15, fh-logY-70)

	g.controls.Draw(screen)
	g.subject.Draw(screen)
}

func (g *Game) drawStatusBar(screen *ebiten.Image) {
	vector.DrawFilledRect(screen, 0, 0, float32(g.width), 30, color.RGBA{30, 30, 40, 255}, false)

	dot := color.RGBA{255, 100, 100, 255}
	mqtt := "MQTT desconectado"
	if g.connected {
		dot = color.RGBA{100, 255, 100, 255}
		mqtt = "MQTT " + g.broker
	}
	if !g.deps.Config.MQTT.Enabled {
		dot = color.RGBA{120, 120, 120, 255}
		mqtt = "MQTT deshabilitado"
	}
	vector.DrawFilledCircle(screen, 16, 15, 5, dot, false)
	ebitenutil.DebugPrintAt(screen, mqtt, 28, 7)

	subject := "Sin sujeto"
	if g.sess.Subject != "" {
		subject = "Sujeto: " + g.sess.Subject
		if g.sess.Recording {
			subject += "  [REC]"
		}
	}
	ebitenutil.DebugPrintAt(screen, subject, g.width/2, 7)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%.0f FPS", ebiten.ActualFPS()), g.width-70, 7)
}

// Layout define el tamaño lógico de la ventana
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.width, g.height
}

// Run abre la ventana y bloquea hasta que se cierra o ctx se cancela
func Run(ctx context.Context, deps Deps) error {
	w := deps.Config.UI.Window
	ebiten.SetWindowSize(w.Width, w.Height)
	ebiten.SetWindowTitle(w.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if deps.Config.UI.FPS > 0 {
		ebiten.SetTPS(deps.Config.UI.FPS)
	}

	game := NewGame(ctx, deps)
	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	game.logger.Info("🛑 [UI] Ventana cerrada")
	return nil
}
