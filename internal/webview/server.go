// Package webview sirve las páginas de cabina (botones de evento,
// n-back, wifi) que corren en las pantallas dentro del simulador. Las
// páginas hablan con el broker MQTT por websocket desde el navegador.
package webview

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/flame-avsim/avsim-monitor/internal/config"
	"github.com/flame-avsim/avsim-monitor/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// Topics que usan las páginas desde el navegador
type Topics struct {
	ButtonEvent string
	NbackCard   string
	NbackAnswer string
}

// DefaultTopics de la vista de cabina
var DefaultTopics = Topics{
	ButtonEvent: "flame/avsim/cabinview/button_event",
	NbackCard:   "flame/avsim/cabinview/nback/card",
	NbackAnswer: "flame/avsim/cabinview/nback/answer",
}

// System es el contexto global de todas las páginas
type System struct {
	Title        string
	Company      string
	Version      string
	Host         string
	Port         string
	BrokerIP     string
	BrokerWSPort int
}

type Server struct {
	cfg    config.WebviewConfig
	system System
	topics Topics
	router *gin.Engine
	logger *slog.Logger
}

func New(cfg config.WebviewConfig, logLevel string) (*Server, error) {
	if logLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg: cfg,
		system: System{
			Title:        cfg.Title,
			Company:      cfg.Company,
			Version:      cfg.Version,
			Host:         cfg.Host,
			Port:         cfg.Port,
			BrokerIP:     cfg.BrokerIP,
			BrokerWSPort: cfg.BrokerWSPort,
		},
		topics: DefaultTopics,
		router: gin.New(),
		logger: slog.Default().With("component", "webview"),
	}
	s.router.SetHTMLTemplate(tmpl)

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery(), requestLogger(s.logger))

	corsConfig := cors.DefaultConfig()
	if s.cfg.AllowedOrigin == "" || s.cfg.AllowedOrigin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.AllowedOrigin}
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "cabinview", "version": s.system.Version})
	})
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// cabinview
	s.router.GET("/", s.page("index.html", "", nil))
	s.router.GET("/event/", s.page("button_event.html", "Event", nil))
	s.router.GET("/wifi/", s.page("wifi_qr.html", "Wi-Fi", nil))

	// n-back visual
	nback := s.router.Group("/nback")
	{
		nback.GET("/2/", s.page("nback.html", "2-back", gin.H{"level": 2}))
		nback.GET("/2/card/", s.page("nback_card.html", "2-back", gin.H{"level": 2}))
	}
}

// page arma el contexto común y renderiza name
func (s *Server) page(name, title string, extra gin.H) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{
			"system": s.system,
			"topics": s.topics,
			"page":   title,
		}
		for k, v := range extra {
			data[k] = v
		}
		c.HTML(http.StatusOK, name, data)
	}
}

// Handler expone el router, para tests y para montarlo en otro server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run sirve en cfg.Listen hasta que ctx se cancela
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 [Webview] Escuchando", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("🛑 [Webview] Cerrando")
		return srv.Shutdown(shutdownCtx)
	}
}
