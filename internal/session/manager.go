// Package session maneja el sujeto del experimento: crea su carpeta de
// trabajo, arranca y detiene la grabación en todos los dispositivos y
// registra en CSV cada evento de escenario emitido.
package session

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
)

// LogFile nombre del log de eventos dentro del workspace
const LogFile = "scenario_log.csv"

var (
	// ErrNoSubject no hay sujeto creado
	ErrNoSubject = errors.New("no hay sujeto activo")
	// ErrInvalidSubject id de sujeto vacío o con caracteres no válidos
	ErrInvalidSubject = errors.New("id de sujeto inválido")
)

var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Recorder es cualquier cosa que graba durante una sesión (cámaras,
// eye-tracker)
type Recorder interface {
	Name() string
	StartRecording(ctx context.Context, workspace string) error
	StopRecording(ctx context.Context) error
}

// Snapshot estado de la sesión para la UI
type Snapshot struct {
	Subject   string
	Workspace string
	Recording bool
	Logged    int
}

// Manager gestiona la sesión del sujeto actual
type Manager struct {
	root   string
	bus    *eventbus.EventBus
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	recorders []Recorder
	subject   string
	workspace string
	recording bool
	logFile   *os.File
	log       *csv.Writer
	logged    int

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager crea un manager que guarda las sesiones bajo root
func NewManager(root string, bus *eventbus.EventBus) *Manager {
	return &Manager{
		root:   root,
		bus:    bus,
		logger: slog.Default().With("component", "session"),
		now:    time.Now,
	}
}

// AddRecorder registra un dispositivo que graba en cada sesión
func (m *Manager) AddRecorder(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorders = append(m.recorders, r)
}

// Start empieza a registrar los eventos de escenario del bus
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.bus == nil {
		return
	}
	m.running = true
	m.done = make(chan struct{})

	due := m.bus.SubscribeBuffered(eventbus.EventScenarioDue, 256)
	m.wg.Add(1)
	go m.loop(due)

	m.logger.Info("✅ [Session] Iniciado", "root", m.root)
}

// Stop detiene la grabación, cierra el log y deja de escuchar el bus
func (m *Manager) Stop(ctx context.Context) error {
	err := m.StopRecording(ctx)
	if errors.Is(err, ErrNoSubject) {
		err = nil
	}

	m.mu.Lock()
	closeErr := m.closeLogLocked()
	running := m.running
	m.running = false
	if running {
		close(m.done)
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("🛑 [Session] Detenido")
	return errors.Join(err, closeErr)
}

func (m *Manager) loop(due <-chan eventbus.Event) {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-due:
			if !ok {
				return
			}
			m.logEvent(ev)
		}
	}
}

// NewSubject cierra la sesión anterior y crea <root>/<id>_<fecha>
func (m *Manager) NewSubject(ctx context.Context, id string) (string, error) {
	if !subjectPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, id)
	}

	var stopErr error
	if m.isRecording() {
		stopErr = m.StopRecording(ctx)
	}

	workspace := filepath.Join(m.root, id+"_"+m.now().Format("20060102_150405"))
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", fmt.Errorf("error creando workspace: %w", err)
	}

	f, err := os.Create(filepath.Join(workspace, LogFile))
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"wall_time", "scenario_time", "mapi", "message"})
	w.Flush()

	m.mu.Lock()
	closeErr := m.closeLogLocked()
	m.subject = id
	m.workspace = workspace
	m.logFile = f
	m.log = w
	m.logged = 0
	m.mu.Unlock()

	m.logger.Info("👤 [Session] Nuevo sujeto", "subject", id, "workspace", workspace)
	m.publish()
	return workspace, errors.Join(stopErr, closeErr)
}

// StartRecording arranca todos los grabadores. Los que fallan se
// reportan pero no impiden que graben los demás.
func (m *Manager) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	if m.subject == "" {
		m.mu.Unlock()
		return ErrNoSubject
	}
	if m.recording {
		m.mu.Unlock()
		return nil
	}
	workspace := m.workspace
	recorders := append([]Recorder(nil), m.recorders...)
	m.recording = true
	m.mu.Unlock()

	var errs []error
	for _, r := range recorders {
		if err := r.StartRecording(ctx, workspace); err != nil {
			m.logger.Warn("⚠️  [Session] Error iniciando grabación", "recorder", r.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}

	m.logger.Info("⏺️  [Session] Grabación iniciada", "recorders", len(recorders), "errors", len(errs))
	m.publish()
	return errors.Join(errs...)
}

// StopRecording detiene todos los grabadores
func (m *Manager) StopRecording(ctx context.Context) error {
	m.mu.Lock()
	if m.subject == "" {
		m.mu.Unlock()
		return ErrNoSubject
	}
	if !m.recording {
		m.mu.Unlock()
		return nil
	}
	recorders := append([]Recorder(nil), m.recorders...)
	m.recording = false
	m.mu.Unlock()

	var errs []error
	for _, r := range recorders {
		if err := r.StopRecording(ctx); err != nil {
			m.logger.Warn("⚠️  [Session] Error deteniendo grabación", "recorder", r.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}

	m.logger.Info("⏹️  [Session] Grabación detenida")
	m.publish()
	return errors.Join(errs...)
}

// Snapshot retorna el estado actual
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Subject:   m.subject,
		Workspace: m.workspace,
		Recording: m.recording,
		Logged:    m.logged,
	}
}

func (m *Manager) isRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

func (m *Manager) logEvent(ev eventbus.Event) {
	data, ok := ev.Data.(eventbus.ScenarioDueData)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.log == nil {
		return
	}

	m.log.Write([]string{
		ev.Timestamp.Format(time.RFC3339Nano),
		strconv.FormatFloat(data.Time, 'f', 1, 64),
		data.RoutingKey,
		data.Message,
	})
	m.log.Flush()
	if err := m.log.Error(); err != nil {
		m.logger.Warn("⚠️  [Session] Error escribiendo log", "err", err)
		return
	}
	m.logged++
}

func (m *Manager) closeLogLocked() error {
	if m.logFile == nil {
		return nil
	}
	m.log.Flush()
	err := errors.Join(m.log.Error(), m.logFile.Close())
	m.logFile = nil
	m.log = nil
	return err
}

func (m *Manager) publish() {
	if m.bus == nil {
		return
	}
	snap := m.Snapshot()
	m.bus.Publish(eventbus.New(eventbus.EventSession, eventbus.SessionData{
		Subject:   snap.Subject,
		Workspace: snap.Workspace,
		Recording: snap.Recording,
	}))
}
