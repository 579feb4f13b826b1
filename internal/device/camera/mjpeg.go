package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flame-avsim/avsim-monitor/internal/device"
)

// maxFrameSize límite por parte JPEG
const maxFrameSize = 8 << 20

// MJPEG lee un stream multipart/x-mixed-replace de una cámara de red.
// Grab bloquea hasta la siguiente parte del stream.
type MJPEG struct {
	id     string
	url    string
	client *http.Client

	mu     sync.Mutex
	body   io.ReadCloser
	reader *multipart.Reader
	cancel context.CancelFunc
}

// NewMJPEG crea una cámara MJPEG; client nil usa http.DefaultClient
func NewMJPEG(id, url string, client *http.Client) *MJPEG {
	if client == nil {
		client = http.DefaultClient
	}
	return &MJPEG{id: id, url: url, client: client}
}

func (cam *MJPEG) ID() string { return cam.id }

// Open abre el stream y valida el content type
func (cam *MJPEG) Open(ctx context.Context) error {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	if cam.body != nil {
		return nil
	}

	// El stream vive más que el ctx de Open; se corta en Close
	sctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(sctx, http.MethodGet, cam.url, nil)
	if err != nil {
		cancel()
		return err
	}

	resp, err := cam.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("error conectando a %s: %w", cam.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("stream %s respondió %s", cam.url, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("content type no es multipart: %q", resp.Header.Get("Content-Type"))
	}

	cam.body = resp.Body
	cam.reader = multipart.NewReader(resp.Body, params["boundary"])
	cam.cancel = cancel
	return nil
}

// Close corta el stream
func (cam *MJPEG) Close() error {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	if cam.body == nil {
		return nil
	}
	cam.cancel()
	err := cam.body.Close()
	cam.body = nil
	cam.reader = nil
	return err
}

// Grab lee y decodifica la siguiente parte JPEG
func (cam *MJPEG) Grab(ctx context.Context) (device.Sample, error) {
	cam.mu.Lock()
	reader := cam.reader
	cancel := cam.cancel
	cam.mu.Unlock()
	if reader == nil {
		return device.Sample{}, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return device.Sample{}, err
	}

	// Un stream trabado no responde a ctx; cancelarlo corta la conexión
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	part, err := reader.NextPart()
	if err != nil {
		if ctx.Err() != nil {
			return device.Sample{}, ctx.Err()
		}
		return device.Sample{}, fmt.Errorf("error leyendo stream: %w", err)
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxFrameSize))
	if err != nil {
		return device.Sample{}, fmt.Errorf("error leyendo frame: %w", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return device.Sample{}, fmt.Errorf("frame JPEG inválido: %w", err)
	}

	return device.Sample{Time: time.Now(), Image: img, JPEG: data}, nil
}
