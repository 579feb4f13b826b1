package camera

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/flame-avsim/avsim-monitor/internal/device"
)

// ErrNoJPEG la muestra no trae frame codificado
var ErrNoJPEG = errors.New("muestra sin JPEG")

// Recorder graba los frames de una cámara en <workspace>/camera/:
// cam_<id>.mjpeg (JPEG concatenados) y timestamp_<id>.csv (un timestamp
// unix por frame, en el mismo orden).
type Recorder struct {
	cameraID int

	mu     sync.Mutex
	video  *os.File
	tsFile *os.File
	ts     *csv.Writer
	frames int
}

// NewRecorder crea un grabador para la cámara id
func NewRecorder(cameraID int) *Recorder {
	return &Recorder{cameraID: cameraID}
}

// Start abre los archivos bajo workspace
func (r *Recorder) Start(workspace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.video != nil {
		return nil
	}

	dir := filepath.Join(workspace, "camera")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creando %s: %w", dir, err)
	}

	video, err := os.Create(filepath.Join(dir, fmt.Sprintf("cam_%d.mjpeg", r.cameraID)))
	if err != nil {
		return err
	}
	tsFile, err := os.Create(filepath.Join(dir, fmt.Sprintf("timestamp_%d.csv", r.cameraID)))
	if err != nil {
		video.Close()
		return err
	}

	r.video = video
	r.tsFile = tsFile
	r.ts = csv.NewWriter(tsFile)
	r.frames = 0
	return nil
}

// WriteSample implementa device.Sink
func (r *Recorder) WriteSample(s device.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.video == nil {
		return nil
	}
	if len(s.JPEG) == 0 {
		return ErrNoJPEG
	}

	if _, err := r.video.Write(s.JPEG); err != nil {
		return err
	}
	ts := float64(s.Time.UnixNano()) / 1e9
	if err := r.ts.Write([]string{strconv.FormatFloat(ts, 'f', 6, 64)}); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Stop cierra los archivos y retorna cuántos frames se grabaron
func (r *Recorder) Stop() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.video == nil {
		return 0, nil
	}

	r.ts.Flush()
	err := errors.Join(r.ts.Error(), r.tsFile.Close(), r.video.Close())
	r.video, r.tsFile, r.ts = nil, nil, nil
	return r.frames, err
}

// Recording indica si está grabando
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.video != nil
}

// Tap conecta un Recorder a los frames de una cámara del controlador
// mientras dure la grabación de la sesión.
type Tap struct {
	rec      *Recorder
	ctrl     *device.Controller
	deviceID string
	remove   func()
}

// NewTap crea la grabación de la cámara id
func NewTap(ctrl *device.Controller, cameraID int) *Tap {
	return &Tap{rec: NewRecorder(cameraID), ctrl: ctrl, deviceID: DeviceID(cameraID)}
}

// Name identifica la cámara en la sesión
func (t *Tap) Name() string { return t.deviceID }

// StartRecording abre los archivos y empieza a recibir frames
func (t *Tap) StartRecording(_ context.Context, workspace string) error {
	if err := t.rec.Start(workspace); err != nil {
		return err
	}
	if t.remove == nil {
		t.remove = t.ctrl.AddSink(t.deviceID, t.rec)
	}
	return nil
}

// StopRecording deja de recibir frames y cierra los archivos
func (t *Tap) StopRecording(context.Context) error {
	if t.remove != nil {
		t.remove()
		t.remove = nil
	}
	_, err := t.rec.Stop()
	return err
}
