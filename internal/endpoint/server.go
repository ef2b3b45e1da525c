// Package endpoint serves the latest readings over a read-only HTTP
// API. It is the pull-side counterpart to the active sender and never
// mutates daemon state on behalf of a client.
package endpoint

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/welterm/udsd/internal/config"
	"codeberg.org/welterm/udsd/internal/hardware"
	"codeberg.org/welterm/udsd/internal/logger"
	"codeberg.org/welterm/udsd/internal/metrics"
	"codeberg.org/welterm/udsd/internal/store"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type Server struct {
	cfg    config.PassiveEndpoint
	store  *store.Store
	engine *gin.Engine
}

func New(cfg config.PassiveEndpoint, st *store.Store) *Server {
	gin.SetMode(gin.ReleaseMode)

	// The counter sits outside Recovery so panicking requests are
	// still counted with their 500.
	s := &Server{cfg: cfg, store: st, engine: gin.New()}
	s.engine.Use(requestCounter(), gin.Recovery())
	s.registerRoutes()

	return s
}

// Engine exposes the router as a plain http.Handler
func (s *Server) Engine() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	data := s.engine.Group("/")
	if s.cfg.BearerToken != "" {
		data.Use(bearerAuth(s.cfg.BearerToken))
	}
	data.GET("/temperature", s.listSensors)
	data.GET("/temperature/:id", s.getSensor)
	data.GET("/ups", s.listUpses)
	data.GET("/ups/:id", s.getUPS)
}

func (s *Server) listSensors(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot().Sensors)
}

func (s *Server) getSensor(c *gin.Context) {
	snap := s.store.SnapshotFiltered(hardware.TypeTemperatureSensor, c.Param("id"))
	if len(snap.Sensors) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, snap.Sensors[0])
}

func (s *Server) listUpses(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot().Upses)
}

func (s *Server) getUPS(c *gin.Context) {
	snap := s.store.SnapshotFiltered(hardware.TypeUPS, c.Param("id"))
	if len(snap.Upses) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, snap.Upses[0])
}

// bearerAuth guards the data routes. The comparison is constant time
// so the token cannot be probed byte by byte.
func bearerAuth(token string) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		supplied, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(supplied), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

func requestCounter() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Unmatched paths share one label to keep cardinality bounded.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.EndpointRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
// A failed bind is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("bind passive endpoint: %w", err)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Passive data endpoint listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
