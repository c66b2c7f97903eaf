package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/edgewire/internal/auth"
	"github.com/danmuck/edgewire/internal/observability"
	"github.com/danmuck/edgewire/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Name        string
	Addr        string
	CorsOrigins []string
	// Token guards mutating routes with a bearer token. Empty leaves them
	// open.
	Token string
}

// Admin serves health, metrics, connection listings and WebSocket ingest.
type Admin struct {
	Name     string
	Addr     string
	Appeared time.Time
	token    string

	registry *transport.Registry
	ws       http.Handler
	router   *gin.Engine
}

func NewAdmin(cfg AdminConfig, registry *transport.Registry, ws http.Handler) *Admin {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		Name:     cfg.Name,
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		token:    cfg.Token,
		registry: registry,
		ws:       ws,
		router:   r,
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Router() *gin.Engine {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Appeared).String(),
			"service": a.Name,
			"version": version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"connections": a.registry.Adapter().Connections(),
		})
	})

	mutate := a.router.Group("/")
	if a.token != "" {
		mutate.Use(auth.Require(auth.StaticToken{Token: a.token}))
	}
	mutate.DELETE("/connections/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := a.registry.Disconnect(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("conn", id).Msg("admin disconnected connection")
		c.JSON(http.StatusOK, gin.H{"status": "closed", "id": id})
	})

	if a.ws != nil {
		a.router.GET("/stream", gin.WrapH(a.ws))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *Admin) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.Addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
