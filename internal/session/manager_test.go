package session

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
)

type fakeRecorder struct {
	name     string
	startErr error
	started  []string
	stopped  int
}

func (f *fakeRecorder) Name() string { return f.name }

func (f *fakeRecorder) StartRecording(_ context.Context, workspace string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, workspace)
	return nil
}

func (f *fakeRecorder) StopRecording(context.Context) error {
	f.stopped++
	return nil
}

func newTestManager(t *testing.T, bus *eventbus.EventBus) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), bus)
	m.now = func() time.Time { return time.Date(2024, 5, 2, 14, 30, 0, 0, time.Local) }
	return m
}

func TestNewSubject_CreatesWorkspaceAndLog(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	ws, err := m.NewSubject(ctx, "S01")
	if err != nil {
		t.Fatalf("NewSubject: %v", err)
	}
	if filepath.Base(ws) != "S01_20240502_143000" {
		t.Errorf("workspace = %s", ws)
	}
	if _, err := os.Stat(filepath.Join(ws, LogFile)); err != nil {
		t.Errorf("log file missing: %v", err)
	}

	for _, bad := range []string{"", "../x", "a b"} {
		if _, err := m.NewSubject(ctx, bad); !errors.Is(err, ErrInvalidSubject) {
			t.Errorf("NewSubject(%q) = %v", bad, err)
		}
	}
}

func TestRecording_FansOutAndContainsFailures(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.StartRecording(ctx); !errors.Is(err, ErrNoSubject) {
		t.Errorf("StartRecording without subject = %v", err)
	}

	good := &fakeRecorder{name: "cam0"}
	broken := &fakeRecorder{name: "neon", startErr: errors.New("no responde")}
	m.AddRecorder(good)
	m.AddRecorder(broken)

	ws, _ := m.NewSubject(ctx, "S02")
	err := m.StartRecording(ctx)
	if err == nil || !errors.Is(err, broken.startErr) {
		t.Errorf("StartRecording error = %v", err)
	}
	if len(good.started) != 1 || good.started[0] != ws {
		t.Errorf("good recorder started with %v", good.started)
	}
	if !m.Snapshot().Recording {
		t.Error("session should be recording despite one failure")
	}

	// Un nuevo sujeto detiene la grabación anterior
	if _, err := m.NewSubject(ctx, "S03"); err != nil {
		t.Fatalf("NewSubject: %v", err)
	}
	if good.stopped != 1 || m.Snapshot().Recording {
		t.Errorf("recording not stopped on new subject: stopped=%d", good.stopped)
	}
}

func TestScenarioEventsAreLogged(t *testing.T) {
	bus := eventbus.NewEventBus()
	defer bus.Close()
	sessions := bus.Subscribe(eventbus.EventSession)

	m := newTestManager(t, bus)
	ctx := context.Background()
	m.Start()

	// Sin sujeto no se registra nada
	m.logEvent(eventbus.New(eventbus.EventScenarioDue, eventbus.ScenarioDueData{Time: 0, RoutingKey: "x", Message: "{}"}))
	if m.Snapshot().Logged != 0 {
		t.Error("event logged without a subject")
	}

	ws, _ := m.NewSubject(ctx, "S04")
	if ev := <-sessions; ev.Data.(eventbus.SessionData).Subject != "S04" {
		t.Errorf("session event = %+v", ev.Data)
	}

	bus.Publish(eventbus.New(eventbus.EventScenarioDue, eventbus.ScenarioDueData{
		Time: 1.5, RoutingKey: "flame/avsim/cabin/nback", Message: `{"level":2}`,
	}))

	deadline := time.Now().Add(time.Second)
	for m.Snapshot().Logged < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	f, err := os.Open(filepath.Join(ws, LogFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	row := rows[1]
	if row[1] != "1.5" || row[2] != "flame/avsim/cabin/nback" || row[3] != `{"level":2}` {
		t.Errorf("row = %v", row)
	}
}
