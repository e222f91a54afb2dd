// Package server exposes the session loop over HTTP: session CRUD,
// prompting, aborts, permission responses and the SSE event feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/logging"
	"github.com/cadenza-ai/cadenza/internal/message"
	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/internal/provider"
	"github.com/cadenza-ai/cadenza/internal/session"
	"github.com/cadenza-ai/cadenza/internal/tool"
)

// Config holds the server's listen and scope settings.
type Config struct {
	Port         int
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server settings. WriteTimeout stays
// zero because the SSE feed holds its response open indefinitely.
func DefaultConfig() *Config {
	return &Config{
		Port:        4096,
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Server is the HTTP surface over the runner and its stores.
type Server struct {
	config    *Config
	appConfig *config.Config
	router    *chi.Mux
	httpSrv   *http.Server

	sessions  *session.Service
	runner    *session.Runner
	messages  *message.Store
	providers *provider.Registry
	tools     *tool.Registry
	responder *permission.Responder

	log zerolog.Logger
}

// New wires a server around an already-constructed runner.
func New(
	cfg *Config,
	appConfig *config.Config,
	sessions *session.Service,
	runner *session.Runner,
	messages *message.Store,
	providers *provider.Registry,
	tools *tool.Registry,
	responder *permission.Responder,
) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:    cfg,
		appConfig: appConfig,
		router:    chi.NewRouter(),
		sessions:  sessions,
		runner:    runner,
		messages:  messages,
		providers: providers,
		tools:     tools,
		responder: responder,
		log:       logging.Component("server"),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.log.Info().Int("port", s.config.Port).Msg("listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// directoryFor resolves the project directory for a request.
func (s *Server) directoryFor(r *http.Request) string {
	if dir := r.URL.Query().Get("directory"); dir != "" {
		return dir
	}
	return s.config.Directory
}
