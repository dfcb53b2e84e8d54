package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mocify/mocify/pkg/engine"
	"github.com/mocify/mocify/pkg/logging"
	"github.com/mocify/mocify/pkg/requestlog"
	"github.com/mocify/mocify/pkg/seed"
	"github.com/mocify/mocify/pkg/store"
)

// Engine is the part of *engine.Engine the API drives.
type Engine interface {
	StartServer(ctx context.Context, collectionID string) (*engine.ServerStatus, error)
	StopServer(port int) error
	ListRunningServers(ctx context.Context) ([]engine.ServerStatus, error)
	Requests(port int, filter *requestlog.Filter) ([]*requestlog.Entry, error)
}

// ShutdownTimeout bounds how long Serve waits for in-flight API calls.
const ShutdownTimeout = 5 * time.Second

// API is the control-plane HTTP API.
type API struct {
	engine      Engine
	routes      store.RouteStore
	metrics     http.Handler
	reloader    Reloader
	corsOrigins []string
	version     string
	log         *slog.Logger

	router    *gin.Engine
	startTime time.Time
}

// NewAPI builds the router. Nothing listens until Serve or ListenAndServe.
func NewAPI(eng Engine, opts ...Option) *API {
	a := &API{
		engine:    eng,
		log:       logging.Nop(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.Component(a.log, "admin")

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	a.router = a.buildRouter()
	return a
}

// Handler returns the API as an http.Handler.
func (a *API) Handler() http.Handler { return a.router }

// Uptime returns the API uptime in seconds.
func (a *API) Uptime() int {
	return int(time.Since(a.startTime).Seconds())
}

func (a *API) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(a.log))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(a.corsOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = a.corsOrigins
	}
	router.Use(cors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: ErrMsgNotFound})
	})

	router.GET("/health", a.handleHealth)
	router.GET("/servers", a.handleListServers)
	router.POST("/servers", a.handleStartServer)
	router.DELETE("/servers/:port", a.handleStopServer)
	router.GET("/servers/:port/requests", a.handleListRequests)
	if a.routes != nil {
		router.GET("/collections/:id/routes", a.handleListRoutes)
	}
	if a.reloader != nil {
		router.POST("/seed/reload", a.handleReloadSeed)
	}
	if a.metrics != nil {
		router.GET("/metrics", gin.WrapH(a.metrics))
	}
	return router
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (a *API) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("admin API listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down within
// ShutdownTimeout.
func (a *API) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("admin API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin API shutdown: %w", err)
	}
	a.log.Info("admin API stopped")
	return nil
}

var _ Reloader = (*seed.Syncer)(nil)
