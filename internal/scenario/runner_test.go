package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
)

// manualTicker entrega ticks cuando el test lo pide
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop() {
	select {
	case <-m.stopped:
	default:
		close(m.stopped)
	}
}

type tickerSource struct {
	created chan *manualTicker
}

func newTickerSource() *tickerSource {
	return &tickerSource{created: make(chan *manualTicker, 8)}
}

func (s *tickerSource) New(time.Duration) Ticker {
	m := &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	s.created <- m
	return m
}

func (s *tickerSource) next(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case m := <-s.created:
		return m
	case <-time.After(time.Second):
		t.Fatal("runner did not create a ticker")
		return nil
	}
}

// fire entrega un tick; el canal sin buffer garantiza que el loop lo recibió
func (m *manualTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("loop did not accept tick")
	}
}

func recv(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bus event")
		return eventbus.Event{}
	}
}

func TestRunner_PublishesDueAndFinished(t *testing.T) {
	bus := eventbus.NewEventBus()
	defer bus.Close()
	due := bus.SubscribeBuffered(eventbus.EventScenarioDue, 16)
	finished := bus.Subscribe(eventbus.EventScenarioFinished)

	src := newTickerSource()
	r := NewRunner(100*time.Millisecond, bus, WithTicker(src.New))
	if err := r.Load(mustParse(t, twoBuckets), "test"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tk := src.next(t)

	tk.fire(t) // tick 0
	ev := recv(t, due).Data.(eventbus.ScenarioDueData)
	if ev.RoutingKey != "a" || ev.Time != 0 {
		t.Errorf("first due = %+v", ev)
	}

	for i := 1; i <= 5; i++ {
		tk.fire(t)
	}
	ev = recv(t, due).Data.(eventbus.ScenarioDueData)
	if ev.RoutingKey != "b" || ev.Time != 0.5 {
		t.Errorf("second due = %+v", ev)
	}

	tk.fire(t) // tick 6: fin
	recv(t, finished)

	select {
	case <-tk.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped after finish")
	}
	if snap := r.Snapshot(); snap.State != Stopped || snap.Source != "test" {
		t.Errorf("snapshot after finish = %+v", snap)
	}
}

func TestRunner_PauseStopsTicking(t *testing.T) {
	bus := eventbus.NewEventBus()
	defer bus.Close()

	src := newTickerSource()
	r := NewRunner(100*time.Millisecond, bus, WithTicker(src.New))
	r.Load(mustParse(t, twoBuckets), "test")
	r.Start()
	tk := src.next(t)

	tk.fire(t)
	tk.fire(t)
	r.Pause()

	select {
	case <-tk.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped after pause")
	}

	snap := r.Snapshot()
	if snap.State != Paused {
		t.Errorf("state = %v", snap.State)
	}
	cursor := snap.Cursor

	r.Start()
	src.next(t)
	if got := r.Snapshot().Cursor; got != cursor {
		t.Errorf("resume moved cursor %v -> %v", cursor, got)
	}

	r.Stop()
	if got := r.Snapshot(); got.State != Stopped || got.Cursor != 0 {
		t.Errorf("after stop = %+v", got)
	}
}

func TestRunner_LoadFileFailureDiscardsPrevious(t *testing.T) {
	bus := eventbus.NewEventBus()
	defer bus.Close()
	loaded := bus.Subscribe(eventbus.EventScenarioLoaded)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(good, []byte(twoBuckets), 0o644)
	os.WriteFile(bad, []byte(`{"scenario": []}`), 0o644)

	r := NewRunner(100*time.Millisecond, bus, WithTicker(newTickerSource().New))
	if err := r.LoadFile(good); err != nil {
		t.Fatalf("LoadFile good: %v", err)
	}
	if data := recv(t, loaded).Data.(eventbus.ScenarioLoadedData); data.Err != nil || data.Events != 2 {
		t.Errorf("loaded = %+v", data)
	}

	if err := r.LoadFile(bad); err == nil {
		t.Fatal("expected error for empty scenario")
	}
	if data := recv(t, loaded).Data.(eventbus.ScenarioLoadedData); data.Err == nil {
		t.Errorf("expected load error event, got %+v", data)
	}

	if r.Schedule() != nil {
		t.Error("previous schedule should be discarded after failed load")
	}
	if err := r.Start(); err == nil {
		t.Error("Start should fail with no schedule")
	}
}
