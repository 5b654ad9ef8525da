// Package web serves the browser front end: the review form, form
// persistence, and a run endpoint that streams rendered result frames.
//
// Information Hiding:
// - gin routing and middleware stack
// - Per-browser sessions (cookie) each owning one executor and result store
// - Frame coalescing between the executor and the SSE response

package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/config"
	"github.com/richinex/aecheck/llm"
	"github.com/richinex/aecheck/render"
	"github.com/richinex/aecheck/storage"
	"github.com/richinex/aecheck/stream"
	"github.com/richinex/aecheck/workflow"
)

// TransportFunc returns the streamer used for one run request. Gateway
// transports forward the browser's cookies as credentials.
type TransportFunc func(r *http.Request) stream.Streamer

// Deps are the collaborators a server is built from.
type Deps struct {
	Settings  *config.Settings
	Catalog   *llm.Catalog
	Registry  *llm.Registry
	Table     *workflow.Table
	Defaults  workflow.Config
	Forms     storage.FormStore
	Transport TransportFunc
}

// Server is the HTTP front end.
type Server struct {
	deps     Deps
	html     *render.HTML
	client   *http.Client
	sessions *sessions

	mu     sync.Mutex
	server *http.Server
}

// Option customizes server construction.
type Option func(*Server)

// WithHTTPClient sets the client used for the gateway token check.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		if c != nil {
			s.client = c
		}
	}
}

// NewServer validates deps and creates a server.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	if deps.Settings == nil || deps.Catalog == nil || deps.Registry == nil || deps.Table == nil {
		return nil, errors.New("web: settings, catalog, registry and table are required")
	}
	if deps.Forms == nil {
		deps.Forms = storage.NewInMemoryStorage()
	}
	if deps.Transport == nil {
		return nil, errors.New("web: transport is required")
	}

	executorOpts := workflow.Options{
		StepTimeout:   deps.Settings.Workflow.StepTimeout,
		SlowDownDelay: deps.Settings.Workflow.SlowDownDelay,
	}
	s := &Server{
		deps:   deps,
		html:   render.NewHTML(),
		client: &http.Client{Timeout: 10 * time.Second},
		sessions: newSessions(func() *workflow.Executor {
			return workflow.NewExecutor(deps.Table, deps.Catalog, deps.Registry, executorOpts)
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router builds the gin engine with every route installed.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if origins := s.deps.Settings.Server.CORSOrigins; len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	// Compression would buffer the event stream.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/run"})))
	r.Use(bodyLimit(int64(s.deps.Settings.Server.MaxBodyKB) << 10))
	r.Use(s.sessions.middleware())

	r.GET("/", s.index)
	r.StaticFS("/static", staticFS())

	api := r.Group("/api")
	{
		api.GET("/models", s.models)
		api.GET("/steps", s.steps)
		api.GET("/samples", s.samples)
		api.GET("/form", s.loadForm)
		api.PUT("/form", s.saveForm)
		api.DELETE("/form", s.deleteForm)
		api.POST("/run", s.run)
		api.POST("/cancel", s.cancel)
		api.GET("/results", s.results)
		api.GET("/token", s.token)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	klog.Infof("listening on http://%s", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.sessions.cancelAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	klog.Info("server stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		klog.V(2).Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// bindError maps a request decoding error to a status code.
func bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// GatewayTransport streams through gw with the caller's cookies attached.
func GatewayTransport(gw *stream.Gateway) TransportFunc {
	return func(r *http.Request) stream.Streamer {
		return gw.With(stream.WithCookies(forwardedCookies(r)))
	}
}

// StaticTransport uses the same streamer for every request.
func StaticTransport(st stream.Streamer) TransportFunc {
	return func(*http.Request) stream.Streamer {
		return st
	}
}
