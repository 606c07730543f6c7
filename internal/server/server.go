package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/razfaz/razfaz/internal/logger"
	"github.com/razfaz/razfaz/internal/relay"
)

const shutdownTimeout = 10 * time.Second

// Dispatcher queues a named inbound event
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload []byte) error
}

// Options configures the HTTP server
type Options struct {
	Addr string
	// AllowedOrigins lists the origins allowed to call the API. Empty or "*" allows all.
	AllowedOrigins []string
}

// Server is the HTTP transport for a relay
type Server struct {
	dispatcher Dispatcher
	hub        *Hub
	engine     *gin.Engine
	addr       string
}

type eventRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// New builds the router. Events published to hub are streamed to clients.
func New(d Dispatcher, hub *Hub, opts Options) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	s := &Server{
		dispatcher: d,
		hub:        hub,
		engine:     engine,
		addr:       opts.Addr,
	}

	engine.GET("/healthz", s.healthHandler)
	engine.GET("/metrics", s.metricsHandler)

	api := engine.Group("/api/v1")
	api.POST("/events/:name", s.postEventHandler)
	api.GET("/events", s.streamHandler)

	return s
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Accept", "Cache-Control"}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logger.Fields{"addr": s.addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Streams only end once their subscription is closed
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, logger.MetricsSnapshotNow())
}

func (s *Server) postEventHandler(c *gin.Context) {
	name := c.Param("name")

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"payload\": ...}"})
		return
	}

	err := s.dispatcher.Dispatch(c.Request.Context(), name, req.Payload)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "event": name})
	case errors.Is(err, relay.ErrUnknownEvent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "events": relay.InboundEvents})
	case errors.Is(err, relay.ErrBadPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Warn("dispatch failed", logger.Fields{"event": name, "error": err.Error()})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "relay is not accepting events"})
	}
}

func (s *Server) streamHandler(c *gin.Context) {
	events, cancel := s.hub.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			data, err := sonic.Marshal(ev.Payload)
			if err != nil {
				logger.Warn("encoding stream event failed", logger.Fields{"event": ev.Name, "error": err.Error()})
				return true
			}
			c.SSEvent(ev.Name, string(data))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.RecordTiming("server.request", time.Since(start))
		logger.Debug("http request", logger.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
