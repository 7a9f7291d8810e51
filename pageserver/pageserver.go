// CLAUDE:SUMMARY Optional chi static server exposing the subject corpus at predictable paths for capture.
// Package pageserver serves the subject corpus over HTTP so a run can be
// self-contained when no external dev server is available.
package pageserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// New returns a handler serving root at "/" plus GET /healthz.
func New(root string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			logger.Debug("pageserver: request", "path", req.URL.Path, "status", ww.Status())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	r.Handle("/*", http.FileServer(http.Dir(root)))
	return r
}

// Server runs the handler on a listener until its context ends.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr. Use "localhost:0" for an ephemeral port.
func Listen(addr, root string, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		srv: &http.Server{Handler: New(root, logger), ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}, nil
}

// URL is the base URL subjects are served under.
func (s *Server) URL() string {
	return "http://" + s.ln.Addr().String() + "/"
}

// Serve blocks until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	}
}
