// Package httpapi is the HTTP face of the edge proxy: the control routes
// under /_edge, the Prometheus endpoint, and the interceptor for everything
// else.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/nutritrack/internal/edge"
	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// ControllerFactory builds a new, not yet installed controller for version.
type ControllerFactory func(version string) (*edge.Controller, error)

// Server is the edge HTTP surface: control routes under /_edge, metrics
// and the intercepting registry for everything else.
type Server struct {
	address       string
	echo          *echo.Echo
	registry      *edge.Registry
	inbox         *edge.Inbox
	newController ControllerFactory
	secret        []byte
	logger        logging.Logger
}

// NewServer registers every route. Push and update require a bearer token
// signed with secretKey.
func NewServer(address string, l logging.Logger, registry *edge.Registry, inbox *edge.Inbox,
	factory ControllerFactory, gatherer prometheus.Gatherer, secretKey string) *Server {
	s := &Server{
		address:       address,
		echo:          echo.New(),
		registry:      registry,
		inbox:         inbox,
		newController: factory,
		secret:        []byte(secretKey),
		logger:        l.With("module", "http_server"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.registerRoutes(gatherer)
	return s
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	g := s.echo.Group("/_edge")
	g.GET("/status", s.status)
	g.GET("/notifications", s.listNotifications)
	g.GET("/notifications/:id/click", s.clickNotification)
	g.POST("/sync/:tag", s.sync)
	g.POST("/push", s.push, s.requireSender)
	g.POST("/update", s.update, s.requireSender)

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	intercept := echo.WrapHandler(s.registry)
	s.echo.Any("/", intercept)
	s.echo.Any("/*", intercept)
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
