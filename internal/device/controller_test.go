package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
)

type fakeDevice struct {
	id      string
	openErr error
	failN   int32 // los primeros failN Grab fallan
	grabs   atomic.Int32
	closed  atomic.Bool
}

func (f *fakeDevice) ID() string                 { return f.id }
func (f *fakeDevice) Open(context.Context) error { return f.openErr }
func (f *fakeDevice) Close() error               { f.closed.Store(true); return nil }

func (f *fakeDevice) Grab(ctx context.Context) (Sample, error) {
	n := f.grabs.Add(1)
	if n <= f.failN {
		return Sample{}, errors.New("sin frame")
	}
	return Sample{Data: n}, nil
}

type recordingSink struct {
	mu   sync.Mutex
	seqs []uint64
}

func (r *recordingSink) WriteSample(s Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, s.Seq)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seqs)
}

func TestController_DeliversSamplesAndStops(t *testing.T) {
	c := NewController(4, nil)
	dev := &fakeDevice{id: "cam0"}
	sink := &recordingSink{}
	remove := c.AddSink("cam0", sink)

	if err := c.Start(context.Background(), dev, time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background(), dev, time.Millisecond); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v", err)
	}

	select {
	case s := <-c.Samples():
		if s.DeviceID != "cam0" || s.Time.IsZero() {
			t.Errorf("sample = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}

	deadline := time.Now().Add(time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() < 3 {
		t.Fatalf("sink got %d samples", sink.count())
	}
	remove()

	st, ok := c.Stats("cam0")
	if !ok || st.Frames == 0 || st.FrameRate <= 0 {
		t.Errorf("stats = %+v", st)
	}

	if err := c.Stop("cam0"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !dev.closed.Load() {
		t.Error("device not closed on Stop")
	}
	if _, ok := c.Stats("cam0"); ok {
		t.Error("stats still present after Stop")
	}
}

func TestController_DropOldestWhenFull(t *testing.T) {
	c := NewController(2, nil)

	for i := uint64(0); i < 5; i++ {
		c.push(Sample{Seq: i})
	}
	first, second := <-c.Samples(), <-c.Samples()
	if first.Seq != 3 || second.Seq != 4 {
		t.Errorf("queue kept %d,%d; want newest 3,4", first.Seq, second.Seq)
	}
}

func TestController_GrabErrorsAreReportedAndCaptureContinues(t *testing.T) {
	old := errorBackoff
	errorBackoff = time.Millisecond
	defer func() { errorBackoff = old }()

	bus := eventbus.NewEventBus()
	defer bus.Close()
	errs := bus.Subscribe(eventbus.EventDeviceError)

	c := NewController(4, bus)
	dev := &fakeDevice{id: "cam1", failN: 2}
	c.Start(context.Background(), dev, time.Millisecond)
	defer c.StopAll()

	select {
	case ev := <-errs:
		data := ev.Data.(eventbus.DeviceErrorData)
		var de *DeviceError
		if data.Device != "cam1" || !errors.As(data.Err, &de) || de.Op != "grab" {
			t.Errorf("error event = %+v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no device error event")
	}

	select {
	case <-c.Samples():
	case <-time.After(time.Second):
		t.Fatal("capture did not continue after errors")
	}
}

func TestController_OpenFailure(t *testing.T) {
	c := NewController(1, nil)
	err := c.Start(context.Background(), &fakeDevice{id: "x", openErr: errors.New("sin cámara")}, 0)

	var de *DeviceError
	if !errors.As(err, &de) || de.Op != "open" {
		t.Errorf("Start = %v", err)
	}
	if len(c.IDs()) != 0 {
		t.Error("failed device should not be registered")
	}
}

// slowDevice bloquea Open hasta que el test lo libera
type slowDevice struct {
	fakeDevice
	gate  chan struct{}
	opens atomic.Int32
}

func (s *slowDevice) Open(context.Context) error {
	s.opens.Add(1)
	<-s.gate
	return nil
}

func TestController_ConcurrentStartOpensOnce(t *testing.T) {
	c := NewController(4, nil)
	dev := &slowDevice{fakeDevice: fakeDevice{id: "cam0"}, gate: make(chan struct{})}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- c.Start(context.Background(), dev, time.Millisecond) }()
	}

	// uno de los dos falla sin llegar a Open
	select {
	case err := <-results:
		if !errors.Is(err, ErrAlreadyRunning) {
			t.Fatalf("Start while opening = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second Start blocked behind Open")
	}

	close(dev.gate)
	if err := <-results; err != nil {
		t.Fatalf("Start = %v", err)
	}
	if n := dev.opens.Load(); n != 1 {
		t.Errorf("device opened %d times", n)
	}
	if ids := c.IDs(); len(ids) != 1 {
		t.Errorf("workers = %v", ids)
	}
	c.StopAll()
	if !dev.closed.Load() {
		t.Error("device not closed")
	}
}
