// Package process lanza y termina procesos hijos a pedido por MQTT
// (broker de escenarios). Cada proceso se identifica por el string de
// comando literal con que fue lanzado.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/dispatch"
	"github.com/flame-avsim/avsim-monitor/internal/metrics"
)

// DefaultShell interpreta los comandos
const DefaultShell = "/bin/sh"

var (
	// ErrNotTracked no hay proceso vivo para ese comando
	ErrNotTracked = errors.New("comando sin proceso activo")
	// ErrEmptyCommand payload sin "command"
	ErrEmptyCommand = errors.New("comando vacío")
	// ErrShuttingDown el manager ya no acepta procesos
	ErrShuttingDown = errors.New("broker cerrándose")
)

type child struct {
	cmd         *exec.Cmd
	started     time.Time
	terminating bool
	done        chan struct{}
}

// signal envía sig a todo el grupo del proceso
func (c *child) signal(sig syscall.Signal) error {
	return syscall.Kill(-c.cmd.Process.Pid, sig)
}

// Info describe un proceso vivo
type Info struct {
	Command     string
	PID         int
	Started     time.Time
	Terminating bool
}

// Manager lleva una pila de procesos por comando. Lanzar el mismo
// comando dos veces no pisa el anterior: Terminate actúa sobre el más
// reciente y los anteriores siguen registrados.
type Manager struct {
	shell  string
	logger *slog.Logger

	mu       sync.Mutex
	children map[string][]*child
	closed   bool
	wg       sync.WaitGroup
}

// NewManager crea un manager; shell vacío usa /bin/sh
func NewManager(shell string) *Manager {
	if shell == "" {
		shell = DefaultShell
	}
	return &Manager{
		shell:    shell,
		logger:   slog.Default().With("component", "process"),
		children: make(map[string][]*child),
	}
}

// Launch ejecuta `shell -c command` sin esperar a que termine
func (m *Manager) Launch(command string) (int, error) {
	if command == "" {
		return 0, ErrEmptyCommand
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrShuttingDown
	}

	cmd := exec.Command(m.shell, "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// grupo propio: las señales llegan también a los hijos del shell
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("error lanzando %q: %w", command, err)
	}

	c := &child{cmd: cmd, started: time.Now(), done: make(chan struct{})}
	m.children[command] = append(m.children[command], c)
	metrics.Processes.Inc()

	m.wg.Add(1)
	go m.reap(command, c)

	m.logger.Info("🚀 [Broker] Proceso lanzado", "command", command, "pid", cmd.Process.Pid)
	return cmd.Process.Pid, nil
}

// reap espera el fin del proceso y lo saca del registro
func (m *Manager) reap(command string, c *child) {
	defer m.wg.Done()
	err := c.cmd.Wait()

	m.mu.Lock()
	stack := m.children[command]
	for i, other := range stack {
		if other == c {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(m.children, command)
	} else {
		m.children[command] = stack
	}
	m.mu.Unlock()

	metrics.Processes.Dec()
	close(c.done)
	m.logger.Info("🔚 [Broker] Proceso terminado", "command", command, "pid", c.cmd.Process.Pid, "err", err)
}

// Terminate envía SIGTERM al proceso más reciente de command que no
// esté ya terminando.
func (m *Manager) Terminate(command string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stack := m.children[command]
	for i := len(stack) - 1; i >= 0; i-- {
		c := stack[i]
		if c.terminating {
			continue
		}
		pid := c.cmd.Process.Pid
		if err := c.signal(syscall.SIGTERM); err != nil {
			return pid, fmt.Errorf("error terminando pid %d: %w", pid, err)
		}
		c.terminating = true
		m.logger.Info("🛑 [Broker] SIGTERM enviado", "command", command, "pid", pid)
		return pid, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrNotTracked, command)
}

// Running retorna cuántos procesos vivos hay para command
func (m *Manager) Running(command string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children[command])
}

// List retorna todos los procesos vivos
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Info
	for command, stack := range m.children {
		for _, c := range stack {
			out = append(out, Info{
				Command:     command,
				PID:         c.cmd.Process.Pid,
				Started:     c.started,
				Terminating: c.terminating,
			})
		}
	}
	return out
}

// Shutdown termina todos los procesos y espera a que salgan. Si ctx
// vence antes, los que quedan reciben SIGKILL.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	for _, stack := range m.children {
		for _, c := range stack {
			if !c.terminating {
				c.signal(syscall.SIGTERM)
				c.terminating = true
			}
		}
	}
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		m.mu.Lock()
		for _, stack := range m.children {
			for _, c := range stack {
				c.signal(syscall.SIGKILL)
			}
		}
		m.mu.Unlock()
		<-finished
	}
	m.logger.Info("✅ [Broker] Todos los procesos terminados")
}

// Register agrega las MAPI de lanzar/terminar a la tabla
func (m *Manager) Register(table *dispatch.Table, launchTopic, terminateTopic string) {
	table.Register(launchTopic, func(p map[string]any) error {
		_, err := m.Launch(dispatch.String(p, "command"))
		return err
	})
	table.Register(terminateTopic, func(p map[string]any) error {
		command := dispatch.String(p, "command")
		if command == "" {
			return ErrEmptyCommand
		}
		_, err := m.Terminate(command)
		return err
	})
}
