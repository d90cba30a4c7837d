// Package handler contains the HTTP handlers of the local control API and
// the share endpoints.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc, a function with the right
// signature. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (path values, body)
// 2. Hand the work to the presenter or a service, on the event loop
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no slideshow state; it all lives on the event loop.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"math"
	"net/http"

	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/presenter"
)

//go:embed templates/*.html
var templateFS embed.FS

// ViewerHandler renders the slideshow as a plain HTML page.
//
// TEMPLATE PARSING:
// The template is parsed once at startup from the embedded filesystem and
// reused for every request. The page reloads itself after each button press,
// so it never holds state of its own.
type ViewerHandler struct {
	templates *template.Template
	ctl       *presenter.Controller
	loop      Runner
	title     string
	logger    *slog.Logger
}

type viewerData struct {
	Title   string
	Frame   presenter.Frame
	Stroke  string
	Fill    string
	Columns int
}

// NewViewerHandler parses the viewer template.
func NewViewerHandler(ctl *presenter.Controller, runner Runner, title string, logger *slog.Logger) (*ViewerHandler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"stroke": func(iconColor string) string {
			c, err := model.ParseColors(iconColor)
			if err != nil {
				return "#000000"
			}
			return c.Stroke()
		},
	}).ParseFS(templateFS, "templates/viewer.html")
	if err != nil {
		return nil, err
	}

	return &ViewerHandler{
		templates: tmpl,
		ctl:       ctl,
		loop:      runner,
		title:     title,
		logger:    logger,
	}, nil
}

// HandleViewer serves the page.
//
// HTTP: GET /
func (h *ViewerHandler) HandleViewer(w http.ResponseWriter, r *http.Request) {
	var frame presenter.Frame
	if err := h.loop.Do(r.Context(), func() error {
		frame = h.ctl.Frame()
		return nil
	}); err != nil {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	data := viewerData{
		Title:   h.title,
		Frame:   frame,
		Stroke:  frame.Colors.Stroke(),
		Fill:    frame.Colors.Fill(),
		Columns: max(1, int(math.Ceil(math.Sqrt(float64(len(frame.Thumbs)))))),
	}

	// Set content type header BEFORE writing the body
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := h.templates.ExecuteTemplate(w, "viewer", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
