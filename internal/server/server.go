package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/isoctl/internal/config"
	"github.com/danmuck/isoctl/internal/observability"
	"github.com/danmuck/isoctl/internal/service"
)

// Server is the service port: one HTTP listener carrying the request
// endpoint, the websocket event stream, health, and metrics. Message
// authenticity is the transport's concern; nothing here authenticates.
type Server struct {
	cfg      config.ServiceConfig
	disp     *service.Dispatcher
	notifier *service.Notifier
	version  string
	started  time.Time
	router   *gin.Engine
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func New(cfg config.ServiceConfig, disp *service.Dispatcher, version string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestLogger(log.Logger))
	router.Use(observability.RequestMetricsMiddleware())

	s := &Server{
		cfg:      cfg,
		disp:     disp,
		notifier: disp.Notifier(),
		version:  version,
		started:  time.Now(),
		router:   router,
		upgrader: newUpgrader(cfg.CorsOrigins),
	}
	s.registerRoutes()
	return s
}

// Router exposes the engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then drains.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("service port listening")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}
