package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/dispatch"
)

func waitRunning(t *testing.T, m *Manager, command string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.Running(command) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Running(%q) = %d, want %d", command, m.Running(command), want)
}

func TestManager_TerminateMostRecentKeepsEarlier(t *testing.T) {
	m := NewManager("")
	defer m.Shutdown(context.Background())

	const cmd = "sleep 30"
	first, err := m.Launch(cmd)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	second, err := m.Launch(cmd)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if m.Running(cmd) != 2 {
		t.Fatalf("Running = %d, want 2", m.Running(cmd))
	}

	pid, err := m.Terminate(cmd)
	if err != nil || pid != second {
		t.Fatalf("Terminate = %d, %v; want %d", pid, err, second)
	}
	waitRunning(t, m, cmd, 1)

	pid, err = m.Terminate(cmd)
	if err != nil || pid != first {
		t.Fatalf("second Terminate = %d, %v; want %d", pid, err, first)
	}
	waitRunning(t, m, cmd, 0)

	if _, err := m.Terminate(cmd); !errors.Is(err, ErrNotTracked) {
		t.Errorf("Terminate with nothing running = %v", err)
	}
}

func TestManager_ReapsExitedProcesses(t *testing.T) {
	m := NewManager("")
	defer m.Shutdown(context.Background())

	if _, err := m.Launch("exit 3"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitRunning(t, m, "exit 3", 0)

	if _, err := m.Launch(""); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Launch empty = %v", err)
	}
}

func TestManager_ShutdownStopsEverything(t *testing.T) {
	m := NewManager("")
	m.Launch("sleep 30")
	m.Launch("sleep 31")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	if got := len(m.List()); got != 0 {
		t.Errorf("%d processes left after shutdown", got)
	}
	if _, err := m.Launch("true"); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Launch after shutdown = %v", err)
	}
}

func TestManager_DispatchHandlers(t *testing.T) {
	m := NewManager("")
	defer m.Shutdown(context.Background())

	table := dispatch.NewTable()
	launch := "flame/avsim/broker/process/mapi_launch"
	terminate := "flame/avsim/broker/process/mapi_terminate"
	m.Register(table, launch, terminate)

	if err := table.Dispatch(launch, []byte(`{"command":"sleep 30"}`)); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if m.Running("sleep 30") != 1 {
		t.Fatal("launch handler did not start a process")
	}

	if err := table.Dispatch(terminate, []byte(`{"command":"sleep 30"}`)); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	waitRunning(t, m, "sleep 30", 0)

	for _, topic := range []string{launch, terminate} {
		err := table.Dispatch(topic, []byte(`{}`))
		if !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("%s without command = %v", topic, err)
		}
	}
}

// alive lee /proc: un zombie cuenta como terminado
func alive(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z" && fields[0] != "X"
}

func TestManager_TerminateReachesShellChildren(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("requiere /proc")
	}
	m := NewManager("")
	defer m.Shutdown(context.Background())

	pidFile := filepath.Join(t.TempDir(), "child.pid")
	cmd := "sleep 30 & echo $! > " + pidFile + "; wait"
	if _, err := m.Launch(cmd); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	var childPID int
	deadline := time.Now().Add(3 * time.Second)
	for childPID == 0 && time.Now().Before(deadline) {
		if data, err := os.ReadFile(pidFile); err == nil {
			childPID, _ = strconv.Atoi(strings.TrimSpace(string(data)))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if childPID == 0 {
		t.Fatal("shell never wrote the child pid")
	}

	if _, err := m.Terminate(cmd); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	waitRunning(t, m, cmd, 0)

	deadline = time.Now().Add(3 * time.Second)
	for alive(childPID) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if alive(childPID) {
		t.Errorf("child pid %d survived Terminate", childPID)
	}
}
