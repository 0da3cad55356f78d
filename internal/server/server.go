// Package server exposes the routing engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kass/go-eco-route/internal/cache"
	"github.com/kass/go-eco-route/internal/events"
	"github.com/kass/go-eco-route/pkg/engine"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	publishTimeout  = 5 * time.Second
)

// Pinger checks an upstream dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server
type Option func(*Server)

// WithCache enables response caching
func WithCache(c *cache.Cache[*RoutingResponse]) Option {
	return func(s *Server) { s.cache = c }
}

// WithPublisher sets where computed-route events are sent
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithRoadHealth reports the road provider in /api/routing/health
func WithRoadHealth(p Pinger) Option {
	return func(s *Server) { s.road = p }
}

// WithLogger sets the request and error logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock sets the time used for requests without a departure time
func WithClock(c engine.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithAllowedOrigins restricts CORS to the given origins
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server serves the routing API over HTTP
type Server struct {
	engine    *engine.Engine
	cache     *cache.Cache[*RoutingResponse]
	publisher events.Publisher
	road      Pinger
	clock     engine.Clock
	origins   []string
	logger    *zap.Logger

	router  *gin.Engine
	handler http.Handler
}

func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    eng,
		publisher: events.Nop{},
		clock:     engine.SystemClock,
		origins:   []string{"*"},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(recoveryMiddleware(s.logger))
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(s.logger))

	router.GET("/health", s.health)
	s.RegisterRoutes(router.Group("/api/routing"))
	s.router = router

	s.handler = cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Origin", requestIDHeader},
		ExposedHeaders: []string{"Content-Length", "Content-Type", requestIDHeader, "X-Cache"},
		MaxAge:         86400,
	}).Handler(router)

	return s
}

// RegisterRoutes registers the routing API under r
func (s *Server) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/eco", s.ecoRoutes)
	r.GET("/locations", s.searchLocations)
	r.GET("/places/nearest", s.nearestPlaces)
	r.GET("/forecast", s.forecast)
	r.GET("/heatmap/:kind", s.heatmap)
	r.GET("/config", s.routingConfig)
	r.GET("/health", s.routingHealth)
	r.GET("/stats", s.stats)
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server forced shutdown", zap.Error(err))
		return err
	}
	return nil
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
	}
}

func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
