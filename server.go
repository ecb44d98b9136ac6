package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// server exposes the dashboard state, the live websocket and the static
// page.
type server struct {
	cfg    Config
	log    *slog.Logger
	dash   *Dashboard
	hub    *wsHub
	engine *gin.Engine
}

func newServer(cfg Config, log *slog.Logger, dash *Dashboard, hub *wsHub) *server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(withLogging(log))

	s := &server{cfg: cfg, log: log, dash: dash, hub: hub, engine: engine}
	s.registerRoutes()
	return s
}

func (s *server) registerRoutes() {
	s.engine.GET("/api/health", s.handleHealth)
	s.engine.GET("/api/state", s.handleState)
	s.engine.GET("/api/stats", s.handleStats)
	s.engine.GET("/api/events", s.handleEvents)
	s.engine.GET("/gtfs-rt/vehicle-positions", s.handleVehiclePositions)
	s.engine.GET("/ws", gin.WrapF(s.hub.handleWebSocket))

	if s.cfg.StaticDir != "" {
		s.engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.hub.closeAll()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *server) handleHealth(c *gin.Context) {
	_, conn := s.dash.Snapshots()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"connectivity": conn,
		"ws_clients":   s.hub.clientCount(),
	})
}

func (s *server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.View())
}

func (s *server) handleStats(c *gin.Context) {
	v := s.dash.View()
	c.JSON(http.StatusOK, gin.H{"stats": v.Stats, "connectivity": v.Connectivity})
}

func (s *server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, s.dash.View().Events)
}

func (s *server) handleVehiclePositions(c *gin.Context) {
	snaps, conn := s.dash.Snapshots()
	feed := BuildVehiclePositions(snaps, conn.LastUpdate)

	if c.Query("format") == "json" {
		b, err := protojson.Marshal(feed)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", b)
		return
	}
	b, err := proto.Marshal(feed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/x-protobuf", b)
}

func withLogging(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
