// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and
// routes. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// The handlers themselves are built by internal/app, which owns the event
// loop and the session. Server only routes to them.
//
// ROUTE STRUCTURE:
//
//	GET    /                               → viewer page (HTML)
//	GET    /api/session                    → role, roster, view state
//	GET    /api/slides                     → every slide in order
//	GET    /api/slides/current             → the slide on screen
//	GET    /api/slides/{uid}/preview.png   → slide image
//	POST   /api/nav/{dir}                  → first, prev, next, last
//	POST   /api/view/{view}                → slides, thumbs
//	POST   /api/autoplay                   → toggle
//	PUT    /api/autoplay/interval          → 2, 10, 30, 60 s
//	PUT    /api/slides/{uid}/title
//	PUT    /api/slides/{uid}/description
//	POST   /api/slides/{uid}/comments
//	POST   /api/slides/{uid}/star
//	POST   /api/reorder                    → click, shift or swap on the grid
//	POST   /api/rescan
//	POST   /api/save
//	POST   /api/export/{format}            → pdf, odp, html
//	POST   /api/audio/record               → toggle
//	POST   /api/audio/play
//	POST   /share/join                     → invite token   (host only)
//	GET    /share/ws?token=                → sync channel   (host only)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/portfolio/internal/auth"
	"github.com/sakif/portfolio/internal/handler"
	"github.com/sakif/portfolio/internal/middleware"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080" or "127.0.0.1:0".
	Addr string
}

// Routes are the handlers the server mounts. Share, Hub and Tokens are nil
// unless this process hosts a share.
type Routes struct {
	Slideshow *handler.SlideshowHandler
	Viewer    *handler.ViewerHandler
	Share     *handler.ShareHandler
	Hub       http.Handler
	Tokens    *auth.TokenService
}

// Server is the HTTP front of one session.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New creates a Server and sets up its routes.
func New(cfg Config, routes Routes, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(routes)
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes(routes Routes) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	if routes.Viewer != nil {
		s.router.Get("/", routes.Viewer.HandleViewer)
	}

	if h := routes.Slideshow; h != nil {
		s.router.Route("/api", func(r chi.Router) {
			r.Get("/session", h.HandleSession)

			r.Get("/slides", h.HandleSlides)
			r.Get("/slides/current", h.HandleCurrent)
			r.Get("/slides/{uid}/preview.png", h.HandlePreview)
			r.Put("/slides/{uid}/title", h.HandleTitle)
			r.Put("/slides/{uid}/description", h.HandleDescription)
			r.Post("/slides/{uid}/comments", h.HandleComment)
			r.Post("/slides/{uid}/star", h.HandleStar)

			r.Post("/nav/{dir}", h.HandleNav)
			r.Post("/view/{view}", h.HandleView)
			r.Post("/autoplay", h.HandleAutoplay)
			r.Put("/autoplay/interval", h.HandleInterval)
			r.Post("/reorder", h.HandleReorder)

			r.Post("/rescan", h.HandleRescan)
			r.Post("/save", h.HandleSave)
			r.Post("/export/{format}", h.HandleExport)

			r.Post("/audio/record", h.HandleRecord)
			r.Post("/audio/play", h.HandlePlay)
		})
	}

	// === Share Routes ===
	// Only a host mounts these. The websocket is behind the invite check;
	// join is open because it is how a guest gets an invite.
	if routes.Share != nil && routes.Hub != nil && routes.Tokens != nil {
		s.router.Route("/share", func(r chi.Router) {
			r.Post("/join", routes.Share.HandleJoin)
			r.With(auth.RequireInvite(routes.Tokens)).Get("/ws", routes.Hub.ServeHTTP)
		})
	}
}

// Listen binds the configured address. Splitting it from Serve lets the
// caller learn the real port when Addr ends in ":0".
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("server: listening on %s: %w", s.config.Addr, err)
	}
	return ln, nil
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (10s timeout)
//
// Hijacked websocket connections are not tracked by Shutdown; the hub is
// closed separately by the app.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("url", "http://"+ln.Addr().String()),
		)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
