// Package eyetracker habla con el eye-tracker Neon por su API HTTP de
// tiempo real (el teléfono Companion expone /api/status y los comandos
// de grabación).
package eyetracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/device"
	"github.com/flame-avsim/avsim-monitor/internal/eventbus"
)

// DeviceID nombre del eye-tracker en el controlador
const DeviceID = "neon"

// ErrNotConnected comando sin dispositivo abierto
var ErrNotConnected = errors.New("eye-tracker no conectado")

// Neon es el cliente del dispositivo. Cada Grab lee /api/status y
// retorna un eventbus.EyetrackerStatusData en Sample.Data.
type Neon struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	open      bool
	recording string // id de la grabación en curso
	last      eventbus.EyetrackerStatusData
}

// NewNeon crea el cliente para address (host:puerto o URL)
func NewNeon(address string, timeout time.Duration) *Neon {
	base := address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Neon{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "eyetracker"),
	}
}

func (n *Neon) ID() string { return DeviceID }

// Open verifica que el dispositivo responda
func (n *Neon) Open(ctx context.Context) error {
	st, err := n.fetchStatus(ctx)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.open = true
	n.last = st
	n.mu.Unlock()
	n.logger.Info("👁️  [Neon] Conectado", "name", st.Name, "address", st.Address)
	return nil
}

// Close detiene una grabación pendiente
func (n *Neon) Close() error {
	n.mu.Lock()
	recording := n.recording != ""
	n.open = false
	n.mu.Unlock()

	if recording {
		ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
		defer cancel()
		return n.RecordStopAndSave(ctx)
	}
	return nil
}

// Grab lee el estado actual
func (n *Neon) Grab(ctx context.Context) (device.Sample, error) {
	n.mu.Lock()
	open := n.open
	n.mu.Unlock()
	if !open {
		return device.Sample{}, ErrNotConnected
	}

	st, err := n.fetchStatus(ctx)
	if err != nil {
		return device.Sample{}, err
	}
	n.mu.Lock()
	n.last = st
	n.mu.Unlock()
	return device.Sample{Time: time.Now(), Data: st}, nil
}

// Status retorna el último estado leído
func (n *Neon) Status() eventbus.EyetrackerStatusData {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// RecordStart inicia una grabación en el teléfono y retorna su id
func (n *Neon) RecordStart(ctx context.Context) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := n.post(ctx, "/api/recording:start", &result); err != nil {
		return "", err
	}

	n.mu.Lock()
	n.recording = result.ID
	n.mu.Unlock()
	n.logger.Info("⏺️  [Neon] Grabación iniciada", "record_id", result.ID)
	return result.ID, nil
}

// RecordStopAndSave detiene y guarda la grabación en curso
func (n *Neon) RecordStopAndSave(ctx context.Context) error {
	if err := n.post(ctx, "/api/recording:stop_and_save", nil); err != nil {
		return err
	}
	n.mu.Lock()
	id := n.recording
	n.recording = ""
	n.mu.Unlock()
	n.logger.Info("💾 [Neon] Grabación guardada", "record_id", id)
	return nil
}

// Name identifica al grabador en la sesión
func (n *Neon) Name() string { return DeviceID }

// StartRecording graba en el teléfono; el workspace local no se usa
func (n *Neon) StartRecording(ctx context.Context, _ string) error {
	_, err := n.RecordStart(ctx)
	return err
}

// StopRecording detiene y guarda
func (n *Neon) StopRecording(ctx context.Context) error {
	return n.RecordStopAndSave(ctx)
}

type envelope struct {
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type component struct {
	Model string          `json:"model"`
	Data  json.RawMessage `json:"data"`
}

type phoneData struct {
	DeviceName   string  `json:"device_name"`
	IP           string  `json:"ip"`
	Port         int     `json:"port"`
	BatteryLevel float64 `json:"battery_level"`
	BatteryState string  `json:"battery_state"`
	Memory       float64 `json:"memory"` // bytes libres
	MemoryState  string  `json:"memory_state"`
}

type recordingData struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

func (n *Neon) fetchStatus(ctx context.Context) (eventbus.EyetrackerStatusData, error) {
	var st eventbus.EyetrackerStatusData

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/api/status", nil)
	if err != nil {
		return st, err
	}
	var comps []component
	if err := n.do(req, &comps); err != nil {
		return st, err
	}

	st.Address = strings.TrimPrefix(strings.TrimPrefix(n.baseURL, "http://"), "https://")
	for _, c := range comps {
		switch c.Model {
		case "Phone":
			var p phoneData
			if err := json.Unmarshal(c.Data, &p); err != nil {
				return st, fmt.Errorf("estado Phone inválido: %w", err)
			}
			st.Name = p.DeviceName
			st.BatteryLevel = p.BatteryLevel
			st.BatteryState = p.BatteryState
			st.FreeStorageGB = p.Memory / (1 << 30)
			st.MemoryState = p.MemoryState
		case "Recording":
			var r recordingData
			if err := json.Unmarshal(c.Data, &r); err == nil {
				st.Recording = r.Action == "START"
			}
		}
	}
	return st, nil
}

func (n *Neon) post(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	return n.do(req, result)
}

// do ejecuta req y decodifica "result" en out
func (n *Neon) do(req *http.Request, out interface{}) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("neon %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("neon %s: respuesta inválida: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("neon %s: %s: %s", req.URL.Path, resp.Status, env.Message)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}
