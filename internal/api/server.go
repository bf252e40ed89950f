// Package api serves the agent's local HTTP API for POS screens running on
// the same machine or LAN.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PosPrintAgent/internal/compose"
	"github.com/NowakAdmin/PosPrintAgent/internal/config"
	"github.com/NowakAdmin/PosPrintAgent/internal/observability"
	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
	"github.com/NowakAdmin/PosPrintAgent/internal/service"
)

// Printer is the part of service.Service the API exposes.
type Printer interface {
	PrintLabel(ctx context.Context, rec compose.Record) (service.JobResult, error)
	PrintBatch(ctx context.Context, recs []compose.Record) (service.JobResult, error)
	PrintReceiptText(ctx context.Context, text string) (service.JobResult, error)
	ListDevices(ctx context.Context) ([]printer.Device, error)
	Connect(ctx context.Context, address string) (bool, error)
	Pair(ctx context.Context, address string) error
	Disconnect(ctx context.Context)
	Status() printer.ConnectionState
}

type Server struct {
	*http.Server
	router  *gin.Engine
	printer Printer
	token   string
	logger  zerolog.Logger
	started time.Time
}

func NewServer(cfg config.APIConfig, p Printer, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	observability.RegisterMetrics()

	logger = logger.With().Str("component", "api").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		router:  r,
		printer: p,
		token:   strings.TrimSpace(cfg.Token),
		logger:  logger,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until Stop is called. It never returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.Addr).Msg("local API listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("local API shutting down")
	return s.Shutdown(ctx)
}

// authorize checks the bearer token when one is configured.
func (s *Server) authorize(c *gin.Context) {
	if s.token == "" {
		c.Next()
		return
	}

	got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, service.Feedback{
			Kind:    "unauthorized",
			Message: "missing or invalid API token",
		})
		return
	}
	c.Next()
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost", "http://127.0.0.1"}
	}
	return origins
}
