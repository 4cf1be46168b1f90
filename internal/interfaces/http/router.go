// Package http serves the read-only status surface of a running authenticator.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/infrastructure/monitoring"
	"github.com/turtacn/authenticator/internal/interfaces/http/handlers"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Router HTTP 路由器
type Router struct {
	engine                *gin.Engine
	config                *config.ServerConfig
	logger                logger.Logger
	healthHandler         *handlers.HealthHandler
	authorizationsHandler *handlers.AuthorizationsHandler
	gatherer              prometheus.Gatherer
	tracing               *monitoring.TracingManager
	server                *http.Server
}

// Dependencies groups what the router serves.
type Dependencies struct {
	Health         *handlers.HealthHandler
	Authorizations *handlers.AuthorizationsHandler
	// Gatherer backs /metrics. Nil falls back to the default registry.
	Gatherer prometheus.Gatherer
	// Tracing enables the tracing middleware when set.
	Tracing *monitoring.TracingManager
}

// NewRouter 创建路由器
func NewRouter(cfg *config.ServerConfig, log logger.Logger, deps Dependencies) *Router {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		engine:                gin.New(),
		config:                cfg,
		logger:                log.WithComponent("StatusServer"),
		healthHandler:         deps.Health,
		authorizationsHandler: deps.Authorizations,
		gatherer:              deps.Gatherer,
		tracing:               deps.Tracing,
	}
	if r.healthHandler == nil {
		r.healthHandler = handlers.NewHealthHandler(nil, log)
	}
	if r.authorizationsHandler == nil {
		r.authorizationsHandler = handlers.NewAuthorizationsHandler()
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(handlers.RecoveryMiddleware(r.logger))
	r.engine.Use(handlers.RequestIDMiddleware())
	if r.tracing != nil {
		r.engine.Use(handlers.TracingMiddleware(r.tracing))
	}
	r.engine.Use(handlers.LoggingMiddleware(r.logger))

	// CORS 配置
	if len(r.config.AllowOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:  r.config.AllowOrigins,
			AllowMethods:  []string{"GET", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", constants.HeaderRequestID},
			ExposeHeaders: []string{constants.HeaderRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/ready", r.healthHandler.ReadinessCheck)
	r.engine.GET("/live", r.healthHandler.LivenessCheck)

	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	if r.config.EnablePprof {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/authorizations", r.authorizationsHandler.ListAuthorizations)
		v1.GET("/authorizations/:connection_id/:authorization_id", r.authorizationsHandler.GetAuthorization)
		v1.GET("/events", r.authorizationsHandler.ListEvents)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Handler returns the routed engine.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Start serves until ctx is cancelled, then shuts the server down gracefully.
func (r *Router) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", r.config.Addr())
	if err != nil {
		return err
	}
	return r.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (r *Router) Serve(ctx context.Context, listener net.Listener) error {
	r.server = &http.Server{
		Handler:        r.engine,
		ReadTimeout:    r.config.ReadTimeout,
		WriteTimeout:   r.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	r.logger.Info(ctx, "Starting status server", logger.Fields{"address": listener.Addr().String()})

	errCh := make(chan error, 1)
	go func() {
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.Stop(shutdownCtx); err != nil {
		r.logger.Error(shutdownCtx, "Server forced to shutdown", err)
		return err
	}
	return <-errCh
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping status server")
	return r.server.Shutdown(ctx)
}
