package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/christopherjohns/fancychat/internal/ratelimit"
)

// Server is the HTTP surface in front of the chat service: a status
// descriptor, a health check, and the WebSocket upgrade endpoint.
type Server struct {
	addr       string
	mux        *http.ServeMux
	httpSrv    *http.Server
	wsHandler  http.Handler
	corsOrigin string
	limiter    *ratelimit.Limiter
	onShutdown func()
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigin sets the single allowed cross-origin address. Empty
// allows any origin.
func WithCORSOrigin(origin string) Option {
	return func(s *Server) {
		s.corsOrigin = origin
	}
}

// WithRateLimiter applies a per-IP limiter to WebSocket upgrade requests.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithShutdownHook registers a function run during Shutdown, after the
// listener stops accepting requests. Used to drain live WebSocket
// connections.
func WithShutdownHook(fn func()) Option {
	return func(s *Server) {
		s.onShutdown = fn
	}
}

// New creates a Server listening on addr that routes /ws to wsHandler.
func New(addr string, wsHandler http.Handler, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		mux:       http.NewServeMux(),
		wsHandler: wsHandler,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.httpSrv = &http.Server{Addr: addr, Handler: s.cors(s.mux)}
	return s
}

// Run starts the HTTP server and blocks until Shutdown is called or the
// listener fails.
func (s *Server) Run() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Shutdown stops accepting requests, runs the shutdown hook, and waits for
// in-flight requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	if s.onShutdown != nil {
		s.onShutdown()
	}
	return err
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /ws", s.rateLimited(s.wsHandler))
}

// cors sets the cross-origin headers on every response and short-circuits
// preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.corsOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimited rejects upgrade requests from IPs over budget with 429.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !s.limiter.Allow(ip) {
				log.Printf("server: rate limited %s", ip)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"message": "Fancy Chat Room Server",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":    "/health",
			"websocket": "/ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
