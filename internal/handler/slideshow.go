package handler

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/export"
	"github.com/sakif/portfolio/internal/loop"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/presenter"
	"github.com/sakif/portfolio/internal/service"
)

// Runner runs fn on the event loop and waits for it. *loop.Loop is the
// production Runner.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

// SlideshowHandler is the local control API of the presentation.
//
// THREADING:
// The controller, the engine and the slide store belong to the event loop
// goroutine. HTTP handlers run on net/http goroutines, so every handler
// here does its work inside h.loop.Do, including plain reads. The frame
// returned to the client is built inside the same Do call, so it shows the
// state right after the mutation.
type SlideshowHandler struct {
	ctl       *presenter.Controller
	portfolio *service.PortfolioService
	loop      Runner
	logger    *slog.Logger
}

// NewSlideshowHandler creates a SlideshowHandler.
func NewSlideshowHandler(
	ctl *presenter.Controller,
	portfolio *service.PortfolioService,
	runner Runner,
	logger *slog.Logger,
) *SlideshowHandler {
	return &SlideshowHandler{
		ctl:       ctl,
		portfolio: portfolio,
		loop:      runner,
		logger:    logger,
	}
}

// SessionResponse is the body of GET /api/session.
type SessionResponse struct {
	Title string `json:"title"`
	presenter.Frame
}

// do runs fn on the loop and maps a stopped loop to 503.
func (h *SlideshowHandler) do(ctx context.Context, fn func() error) error {
	err := h.loop.Do(ctx, fn)
	if errors.Is(err, loop.ErrStopped) {
		return apperror.Unavailable("the session is shutting down")
	}
	return err
}

// mutate runs fn on the loop and answers with the frame it leaves behind.
func (h *SlideshowHandler) mutate(w http.ResponseWriter, r *http.Request, fn func() error) {
	var frame presenter.Frame
	err := h.do(r.Context(), func() error {
		if err := fn(); err != nil {
			return err
		}
		frame = h.ctl.Frame()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// =========================================================================
// READS
// =========================================================================

// HandleSession returns the role, roster and view state.
//
// HTTP: GET /api/session
func (h *SlideshowHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	var resp SessionResponse
	err := h.do(r.Context(), func() error {
		resp = SessionResponse{Title: h.portfolio.Title(), Frame: h.ctl.Frame()}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSlides lists every slide in sequence order.
//
// HTTP: GET /api/slides
func (h *SlideshowHandler) HandleSlides(w http.ResponseWriter, r *http.Request) {
	var slides []presenter.SlideInfo
	err := h.do(r.Context(), func() error {
		slides = h.ctl.Slides()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slides)
}

// HandleCurrent returns the slide on screen. 404 while the grid or a
// placeholder is showing.
//
// HTTP: GET /api/slides/current
func (h *SlideshowHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	var slide *presenter.SlideFrame
	err := h.do(r.Context(), func() error {
		frame := h.ctl.Frame()
		if frame.Slide == nil {
			return apperror.NotFound("slide", "current")
		}
		slide = frame.Slide
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slide)
}

// HandlePreview serves a slide's image as PNG.
//
// HTTP: GET /api/slides/{uid}/preview.png
func (h *SlideshowHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	var buf bytes.Buffer
	err := h.do(r.Context(), func() error {
		img, err := h.ctl.Preview(uid)
		if err != nil {
			return err
		}
		if img == nil {
			return apperror.NotFound("preview", uid)
		}
		return png.Encode(&buf, img)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// =========================================================================
// NAVIGATION AND VIEW
// =========================================================================

// HandleNav moves the cursor.
//
// HTTP: POST /api/nav/{dir}   dir is first, prev, next or last
func (h *SlideshowHandler) HandleNav(w http.ResponseWriter, r *http.Request) {
	dir := r.PathValue("dir")
	var move func()
	switch dir {
	case "first":
		move = h.ctl.First
	case "prev":
		move = h.ctl.Prev
	case "next":
		move = h.ctl.Next
	case "last":
		move = h.ctl.Last
	default:
		writeError(w, apperror.ValidationFailed("dir", "direction must be first, prev, next or last"))
		return
	}
	h.mutate(w, r, func() error {
		move()
		return nil
	})
}

// HandleView switches between the slide and the thumbnail view.
//
// HTTP: POST /api/view/{view}   view is slides or thumbs
func (h *SlideshowHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	v, ok := presenter.ParseView(r.PathValue("view"))
	if !ok {
		writeError(w, apperror.ValidationFailed("view", "view must be slides or thumbs"))
		return
	}
	h.mutate(w, r, func() error {
		h.ctl.SetView(v)
		return nil
	})
}

// HandleAutoplay starts or stops autoplay.
//
// HTTP: POST /api/autoplay
func (h *SlideshowHandler) HandleAutoplay(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func() error {
		h.ctl.ToggleAutoplay()
		return nil
	})
}

// IntervalRequest is the body of PUT /api/autoplay/interval.
type IntervalRequest struct {
	Seconds int `json:"seconds"`
}

// HandleInterval sets the autoplay interval (2, 10, 30 or 60 seconds).
//
// HTTP: PUT /api/autoplay/interval
func (h *SlideshowHandler) HandleInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.mutate(w, r, func() error {
		return h.ctl.SetInterval(time.Duration(req.Seconds) * time.Second)
	})
}

// =========================================================================
// EDITS
// =========================================================================

type titleRequest struct {
	Title string `json:"title"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

type commentRequest struct {
	Message string `json:"message"`
}

// HandleTitle renames a slide.
//
// HTTP: PUT /api/slides/{uid}/title   {"title": "..."}
func (h *SlideshowHandler) HandleTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	uid := r.PathValue("uid")
	h.mutate(w, r, func() error { return h.ctl.SetTitle(uid, req.Title) })
}

// HandleDescription replaces a slide description.
//
// HTTP: PUT /api/slides/{uid}/description   {"description": "..."}
func (h *SlideshowHandler) HandleDescription(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	uid := r.PathValue("uid")
	h.mutate(w, r, func() error { return h.ctl.SetDescription(uid, req.Description) })
}

// HandleComment appends a comment from the local participant.
//
// HTTP: POST /api/slides/{uid}/comments   {"message": "..."}
func (h *SlideshowHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	uid := r.PathValue("uid")
	h.mutate(w, r, func() error { return h.ctl.AddComment(uid, req.Message) })
}

// HandleStar flips a slide's favorite flag.
//
// HTTP: POST /api/slides/{uid}/star
func (h *SlideshowHandler) HandleStar(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	h.mutate(w, r, func() error { return h.ctl.ToggleStar(uid) })
}

// ReorderRequest describes a finished press on the thumbnail grid.
type ReorderRequest struct {
	Press   string `json:"press"`
	Release string `json:"release"`
	DX      int    `json:"dx"`
	DY      int    `json:"dy"`
}

// HandleReorder applies a click, shift or swap on the thumbnail grid.
//
// HTTP: POST /api/reorder   {"press": uid, "release": uid, "dx": 0, "dy": 40}
func (h *SlideshowHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Press == "" {
		writeError(w, apperror.ValidationFailed("press", "press is required"))
		return
	}
	h.mutate(w, r, func() error {
		return h.ctl.Release(req.Press, req.Release, req.DX, req.DY)
	})
}

// =========================================================================
// JOURNAL
// =========================================================================

// HandleRescan reloads the starred documents and re-shares them.
//
// HTTP: POST /api/rescan
func (h *SlideshowHandler) HandleRescan(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func() error { return h.ctl.Rescan(r.Context()) })
}

// SaveResponse is the body of POST /api/save.
type SaveResponse struct {
	Saved int `json:"saved"`
}

// HandleSave writes modified slides back to the journal.
//
// HTTP: POST /api/save
func (h *SlideshowHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var saved int
	err := h.do(r.Context(), func() error {
		var err error
		saved, err = h.portfolio.SaveChanges(r.Context())
		return err
	})
	if err != nil {
		h.logger.Error("saving slides failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Saved: saved})
}

// HandleExport renders the visible slides and keeps the file in the journal.
//
// HTTP: POST /api/export/{format}   format is pdf, odp or html
func (h *SlideshowHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("format", "format must be pdf, odp or html"))
		return
	}
	var doc *model.Document
	err = h.do(r.Context(), func() error {
		var err error
		doc, err = h.portfolio.Export(r.Context(), f)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("exported", slog.String("format", string(f)), slog.String("id", doc.ID))
	writeJSON(w, http.StatusCreated, doc)
}

// =========================================================================
// AUDIO
// =========================================================================

// HandleRecord starts or stops recording a note for the current slide.
//
// HTTP: POST /api/audio/record
func (h *SlideshowHandler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.ctl.ToggleRecord)
}

// HandlePlay plays the current slide's note.
//
// HTTP: POST /api/audio/play
func (h *SlideshowHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.ctl.Play)
}
