package webview

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flame-avsim/avsim-monitor/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default().Webview
	cfg.BrokerIP = "192.168.0.12"
	s, err := New(cfg, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestPagesRender(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]string{
		"/":              "Button event",
		"/event/":        "button_event",
		"/wifi/":         "192.168.0.12:8083",
		"/nback/2/":      "2-back",
		"/nback/2/card/": "Match",
	}
	for path, want := range cases {
		t.Run(path, func(t *testing.T) {
			w := get(t, s, path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, want) {
				t.Errorf("body missing %q", want)
			}
			if !strings.Contains(body, "Flame AVSIM Cabinview") {
				t.Error("page missing system title")
			}
			if !strings.Contains(body, "192.168.0.12:8083") {
				t.Error("page missing broker websocket address")
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := get(t, s, "/health")
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w = get(t, s, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "avsim_broker_processes") {
		t.Errorf("metrics missing collectors: %d", w.Code)
	}

	if w := get(t, s, "/nback/3/"); w.Code != http.StatusNotFound {
		t.Errorf("unknown page = %d", w.Code)
	}
}

func TestCORSAllowsCabinDisplays(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://192.168.0.40")
	s.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
