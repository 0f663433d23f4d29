// Package httpapi is a JSON control transport: commands are posted per
// session id and answered synchronously; asynchronous lines collect in a
// per-session outbox.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stockbot/internal/task"
	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

// Router answers one inbound line with the lines to show.
type Router interface {
	Route(ctx context.Context, msg transport.Message) []string
}

// Helper lists the command tree.
type Helper interface {
	Help() []string
}

// Tasks exposes the task runner.
type Tasks interface {
	Running() []task.Info
	Recent() []task.Info
}

type Config struct {
	Addr string
	// Token, when set, is required as "Authorization: Bearer <token>" on /v1.
	Token string
	// OutboxSize bounds each session's pending lines (default 256).
	OutboxSize int
}

type Server struct {
	cfg    Config
	router Router
	help   Helper
	tasks  Tasks
	log    logx.Logger

	startedAt time.Time
	srv       *http.Server

	mu     sync.Mutex
	outbox map[string][]string
	ln     net.Listener
}

var _ transport.Sink = (*Server)(nil)

func New(cfg Config, router Router, help Helper, tasks Tasks, log logx.Logger) *Server {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:       cfg,
		router:    router,
		help:      help,
		tasks:     tasks,
		log:       log.With(logx.String("comp", "httpapi")),
		startedAt: time.Now(),
		outbox:    map[string][]string{},
	}
}

func (s *Server) Channel() string { return transport.ChannelHTTP }

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/help", s.handleHelp)
		r.Post("/sessions/{id}/commands", s.handleCommand)
		r.Get("/sessions/{id}/outbox", s.handleOutbox)
		r.Get("/tasks", s.handleTasks)
	})
	return r
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("httpapi listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("httpapi shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr is the bound address once Start has listened.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Send queues text for the target session's outbox; the oldest lines go
// first when the outbox is full.
func (s *Server) Send(_ context.Context, to transport.Target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	box := append(s.outbox[to.ID], text)
	if over := len(box) - s.cfg.OutboxSize; over > 0 {
		box = box[over:]
	}
	s.outbox[to.ID] = box
	return nil
}

func (s *Server) drain(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox[id]
	delete(s.outbox, id)
	return out
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		key = strings.TrimSpace(key)
		if !ok || key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
