package scenario

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

// playUntilFinished corre ticks hasta terminar y retorna las emisiones
// como "tick:key:mapi" más el tick en que terminó.
func playUntilFinished(t *testing.T, p *Player, maxTicks int) ([]string, int) {
	t.Helper()
	var out []string
	for tick := 0; tick < maxTicks; tick++ {
		res := p.Tick()
		for _, ev := range res.Due {
			out = append(out, fmt.Sprintf("%d:%.1f:%s", tick, ev.Time, ev.RoutingKey))
		}
		if res.Finished {
			return out, tick
		}
	}
	t.Fatalf("player did not finish in %d ticks", maxTicks)
	return nil, -1
}

func mustParse(t *testing.T, doc string) *Schedule {
	t.Helper()
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

func TestPlayer_TwoBucketTimeline(t *testing.T) {
	p := NewPlayer(100 * time.Millisecond)
	if err := p.Load(mustParse(t, twoBuckets)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, finishedAt := playUntilFinished(t, p, 100)
	want := []string{"0:0.0:a", "5:0.5:b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("emissions = %v, want %v", got, want)
	}
	if finishedAt != 6 {
		t.Errorf("finished at tick %d, want 6", finishedAt)
	}
	if p.State() != Stopped {
		t.Errorf("state after finish = %v", p.State())
	}
}

func TestPlayer_SingleEventAtZero(t *testing.T) {
	p := NewPlayer(100 * time.Millisecond)
	p.Load(mustParse(t, `{"scenario":[{"time":0,"event":[{"mapi":"only","message":"{}"}]}]}`))
	p.Start()

	first := p.Tick()
	if len(first.Due) != 1 || first.Due[0].RoutingKey != "only" || first.Finished {
		t.Fatalf("first tick = %+v", first)
	}
	second := p.Tick()
	if !second.Finished || len(second.Due) != 0 {
		t.Fatalf("second tick = %+v", second)
	}
}

func TestPlayer_EveryEventOnceInOrder(t *testing.T) {
	doc := `{"scenario":[
		{"time":1.2,"event":[{"mapi":"c1","message":"{}"},{"mapi":"c2","message":"{}"}]},
		{"time":0.3,"event":[{"mapi":"b","message":"{}"}]},
		{"time":0.0,"event":[{"mapi":"a","message":"{}"}]},
		{"time":1.2,"event":[{"mapi":"c3","message":"{}"}]}
	]}`
	s := mustParse(t, doc)
	p := NewPlayer(100 * time.Millisecond)
	p.Load(s)
	p.Start()

	got, _ := playUntilFinished(t, p, 100)
	want := []string{"0:0.0:a", "3:0.3:b", "12:1.2:c1", "12:1.2:c2", "12:1.2:c3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("emissions = %v, want %v", got, want)
	}
	if len(got) != s.Len() {
		t.Errorf("emitted %d, document has %d", len(got), s.Len())
	}
}

func TestPlayer_ReloadIsIdempotent(t *testing.T) {
	p := NewPlayer(100 * time.Millisecond)

	p.Load(mustParse(t, twoBuckets))
	p.Start()
	first, _ := playUntilFinished(t, p, 100)

	p.Load(mustParse(t, twoBuckets))
	p.Start()
	second, _ := playUntilFinished(t, p, 100)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("reload changed playback: %v vs %v", first, second)
	}
}

func TestPlayer_PauseResumeKeepsCursor(t *testing.T) {
	p := NewPlayer(100 * time.Millisecond)
	p.Load(mustParse(t, twoBuckets))
	p.Start()

	var keys []string
	record := func(res TickResult) {
		for _, ev := range res.Due {
			keys = append(keys, ev.RoutingKey)
		}
	}

	for i := 0; i < 3; i++ {
		record(p.Tick())
	}
	cursor := p.Cursor()

	if !p.Pause() {
		t.Fatal("Pause from Running should change state")
	}
	if res := p.Tick(); len(res.Due) != 0 || res.Finished {
		t.Errorf("tick while paused produced %+v", res)
	}
	if p.Cursor() != cursor {
		t.Errorf("cursor moved while paused: %v -> %v", cursor, p.Cursor())
	}

	p.Start()
	if p.Cursor() != cursor {
		t.Errorf("resume reset cursor: %v -> %v", cursor, p.Cursor())
	}
	for {
		res := p.Tick()
		record(res)
		if res.Finished {
			break
		}
	}

	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("pause/resume emissions = %v", keys)
	}
}

func TestPlayer_StopRestartsFromZero(t *testing.T) {
	p := NewPlayer(100 * time.Millisecond)
	p.Load(mustParse(t, twoBuckets))
	p.Start()

	if res := p.Tick(); len(res.Due) != 1 {
		t.Fatalf("tick 0 = %+v", res)
	}
	p.Tick()
	p.Stop()
	if p.Cursor() != 0 {
		t.Errorf("cursor after stop = %v", p.Cursor())
	}

	p.Start()
	res := p.Tick()
	if len(res.Due) != 1 || res.Due[0].RoutingKey != "a" {
		t.Errorf("restart did not re-fire tick-0 events: %+v", res)
	}
}

func TestPlayer_LoadFailures(t *testing.T) {
	p := NewPlayer(0)
	if p.Interval() != DefaultTickInterval {
		t.Errorf("default interval = %v", p.Interval())
	}

	if err := p.Start(); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("Start without schedule = %v", err)
	}

	p.Load(mustParse(t, twoBuckets))
	p.Start()
	p.Tick()

	err := p.Load(nil)
	if !errors.Is(err, ErrEmptyScenario) {
		t.Errorf("Load(nil) = %v", err)
	}
	if p.State() != Stopped || p.Cursor() != 0 || p.Schedule() != nil {
		t.Errorf("failed load should leave player stopped and empty: %v %v", p.State(), p.Cursor())
	}
	if err := p.Start(); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("Start after failed load = %v", err)
	}
}

func TestPlayer_CoarserTickInterval(t *testing.T) {
	// Con 0.5s por tick solo se consultan los buckets múltiplos de 0.5
	p := NewPlayer(500 * time.Millisecond)
	p.Load(mustParse(t, twoBuckets))
	p.Start()

	got, finishedAt := playUntilFinished(t, p, 10)
	if !reflect.DeepEqual(got, []string{"0:0.0:a", "1:0.5:b"}) {
		t.Errorf("emissions = %v", got)
	}
	if finishedAt != 2 {
		t.Errorf("finished at %d", finishedAt)
	}
}
