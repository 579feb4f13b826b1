package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/device"
)

func TestSimulated_GrabProducesFrames(t *testing.T) {
	cam := NewSimulated("cam0", 64, 48, 200)
	ctx := context.Background()

	if _, err := cam.Grab(ctx); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Grab before Open = %v", err)
	}

	cam.Open(ctx)
	defer cam.Close()

	s, err := cam.Grab(ctx)
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if b := s.Image.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("bounds = %v", b)
	}
	if _, err := jpeg.Decode(bytes.NewReader(s.JPEG)); err != nil {
		t.Errorf("JPEG not decodable: %v", err)
	}

	next, _ := cam.Grab(ctx)
	if bytes.Equal(next.JPEG, s.JPEG) {
		t.Error("consecutive frames should differ")
	}
}

func TestSimulated_GrabHonorsContext(t *testing.T) {
	cam := NewSimulated("cam0", 8, 8, 0.5)
	cam.Open(context.Background())
	cam.Grab(context.Background()) // primer frame inmediato

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := cam.Grab(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Grab with expired ctx = %v", err)
	}
}

func testJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{shade, shade, shade, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func mjpegServer(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for _, f := range frames {
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(f))
			w.Write(f)
			fmt.Fprint(w, "\r\n")
		}
		fmt.Fprint(w, "--frame--\r\n")
	}))
}

func TestMJPEG_ReadsParts(t *testing.T) {
	frames := [][]byte{testJPEG(t, 10), testJPEG(t, 200)}
	srv := mjpegServer(t, frames)
	defer srv.Close()

	cam := NewMJPEG("cam1", srv.URL, srv.Client())
	ctx := context.Background()
	if err := cam.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cam.Close()

	for i, want := range frames {
		s, err := cam.Grab(ctx)
		if err != nil {
			t.Fatalf("Grab %d: %v", i, err)
		}
		if !bytes.Equal(s.JPEG, want) {
			t.Errorf("frame %d differs", i)
		}
		if s.Image.Bounds().Dx() != 16 {
			t.Errorf("frame %d bounds = %v", i, s.Image.Bounds())
		}
	}

	if _, err := cam.Grab(ctx); err == nil {
		t.Error("expected error at end of stream")
	}
}

func TestMJPEG_RejectsNonMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	cam := NewMJPEG("cam1", srv.URL, srv.Client())
	err := cam.Open(context.Background())
	if err == nil || !strings.Contains(err.Error(), "multipart") {
		t.Errorf("Open = %v", err)
	}
}

func TestMJPEG_StalledStreamStopsOnCancel(t *testing.T) {
	frame := testJPEG(t, 90)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame))
		w.Write(frame)
		fmt.Fprint(w, "\r\n")
		w.(http.Flusher).Flush()
		// la cámara deja de mandar frames sin cerrar la conexión
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctrl := device.NewController(4, nil)
	cam := NewMJPEG("cam0", srv.URL, srv.Client())
	if err := ctrl.Start(context.Background(), cam, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case s := <-ctrl.Samples():
		if !bytes.Equal(s.JPEG, frame) {
			t.Error("first frame differs")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame before the stall")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- ctrl.Stop("cam0") }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a stalled stream")
	}
}

func TestRegistry_FromConfig(t *testing.T) {
	reg, errs := FromConfig([]config.CameraConfig{
		{ID: 2, Kind: "simulated"},
		{ID: 0, Kind: "mjpeg", URL: "http://camera.local/stream"},
		{ID: 5, Kind: "gige"},
		{ID: 6, Kind: "mjpeg"},
	})

	if len(errs) != 2 {
		t.Fatalf("errs = %v", errs)
	}
	var de *device.DeviceError
	if !errors.As(errs[0], &de) || !errors.Is(errs[0], ErrUnknownKind) || de.Device != "cam5" {
		t.Errorf("unknown kind error = %v", errs[0])
	}

	all := reg.All()
	if len(all) != 2 || all[0].Config.ID != 0 || all[1].Config.ID != 2 {
		t.Fatalf("All() order wrong: %+v", all)
	}
	if e, ok := reg.Get(2); !ok || e.Device.ID() != "cam2" {
		t.Errorf("Get(2) = %+v", e)
	}
	if err := reg.Register(config.CameraConfig{ID: 2}, NewSimulated("cam2", 0, 0, 0)); err == nil {
		t.Error("duplicate register should fail")
	}
}

func TestRecorder_WritesVideoAndTimestamps(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(3)

	// Sin Start no graba nada
	rec.WriteSample(device.Sample{JPEG: []byte{1}})
	if err := rec.Start(dir); err != nil {
		t.Fatalf("Start: %v", err)
	}

	frames := [][]byte{testJPEG(t, 1), testJPEG(t, 2)}
	base := time.Unix(1700000000, 500000000)
	for i, f := range frames {
		if err := rec.WriteSample(device.Sample{JPEG: f, Time: base.Add(time.Duration(i) * 100 * time.Millisecond)}); err != nil {
			t.Fatalf("WriteSample: %v", err)
		}
	}
	if err := rec.WriteSample(device.Sample{}); !errors.Is(err, ErrNoJPEG) {
		t.Errorf("sample without JPEG = %v", err)
	}

	n, err := rec.Stop()
	if err != nil || n != 2 {
		t.Fatalf("Stop = %d, %v", n, err)
	}

	video, _ := os.ReadFile(filepath.Join(dir, "camera", "cam_3.mjpeg"))
	if !bytes.Equal(video, append(append([]byte{}, frames[0]...), frames[1]...)) {
		t.Error("video file is not the concatenated frames")
	}
	ts, _ := os.ReadFile(filepath.Join(dir, "camera", "timestamp_3.csv"))
	if string(ts) != "1700000000.500000\n1700000000.600000\n" {
		t.Errorf("timestamps = %q", ts)
	}
}
