package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/portfolio/internal/engine"
	"github.com/sakif/portfolio/internal/handler"
	"github.com/sakif/portfolio/internal/loop"
	"github.com/sakif/portfolio/internal/loop/looptest"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/origin"
	"github.com/sakif/portfolio/internal/origin/sqlite"
	"github.com/sakif/portfolio/internal/presenter"
	"github.com/sakif/portfolio/internal/service"
	"github.com/sakif/portfolio/internal/session"
	"github.com/sakif/portfolio/internal/slidestore"
)

// inline is a Runner that runs fn on the calling goroutine. Tests are
// single-threaded, so that is the event loop.
type inline struct{}

func (inline) Do(_ context.Context, fn func() error) error { return fn() }

// stopped is a Runner whose loop has already exited.
type stopped struct{}

func (stopped) Do(context.Context, func() error) error { return loop.ErrStopped }

type apiEnv struct {
	h       *handler.SlideshowHandler
	ctl     *presenter.Controller
	db      *sqlite.DB
	fs      afero.Fs
	uids    map[string]string // title → document id
	logger  *slog.Logger
	portfol *service.PortfolioService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 6))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// newAPIEnv builds a solo session over an in-memory journal holding the
// given starred titles, and rescans it.
func newAPIEnv(t *testing.T, titles ...string) *apiEnv {
	t.Helper()
	ctx := context.Background()
	logger := quietLogger()
	fs := afero.NewMemMapFs()
	db, err := sqlite.New(":memory:", fs, "/journal")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &apiEnv{db: db, fs: fs, uids: make(map[string]string), logger: logger}
	for _, title := range titles {
		doc, err := db.Create(ctx)
		require.NoError(t, err)
		doc.SetMeta(model.MetaTitle, title)
		doc.SetMeta(model.MetaKeep, "1")
		doc.SetMeta(model.MetaPreview, pngBase64(t))
		require.NoError(t, db.Write(ctx, doc, origin.WriteOptions{}))
		env.uids[title] = doc.ID
	}

	state := session.New("ana", model.Colors{"#336699", "#FFCC00"})
	slides := slidestore.New()
	sched := looptest.New()
	eng := engine.New(slides, state, sched, logger)
	env.portfol = service.NewPortfolioService(db, fs, slides, state, "/work", "Science fair", logger)
	env.ctl = presenter.New(eng, sched, env.portfol, presenter.Options{Width: 800, Height: 600}, logger)
	require.NoError(t, env.ctl.Rescan(ctx))

	env.h = handler.NewSlideshowHandler(env.ctl, env.portfol, inline{}, logger)
	return env
}

func do(t *testing.T, fn http.HandlerFunc, method, target, body string, pathValues ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	rr := httptest.NewRecorder()
	fn(rr, req)
	return rr
}

func decodeFrame(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
	return e.Error
}

// =========================================================================
// READS
// =========================================================================

func TestSession(t *testing.T) {
	env := newAPIEnv(t, "Volcano", "Bridge")

	rr := do(t, env.h.HandleSession, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rr.Code)

	got := decodeFrame(t, rr)
	assert.Equal(t, "Science fair", got["title"])
	assert.Equal(t, "undecided", got["role"])
	assert.Equal(t, "slides", got["view"])
	assert.EqualValues(t, 2, got["count"])
	assert.EqualValues(t, 1, got["position"])
	assert.EqualValues(t, 10, got["interval"])
}

func TestSlidesAndCurrent(t *testing.T) {
	env := newAPIEnv(t, "Volcano", "Bridge")

	rr := do(t, env.h.HandleSlides, http.MethodGet, "/api/slides", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var slides []presenter.SlideInfo
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&slides))
	require.Len(t, slides, 2)
	assert.Equal(t, "Volcano", slides[0].Title)
	assert.Equal(t, "ana", slides[0].Owner)

	rr = do(t, env.h.HandleCurrent, http.MethodGet, "/api/slides/current", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var cur presenter.SlideFrame
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&cur))
	assert.Equal(t, env.uids["Volcano"], cur.UID)
	assert.Equal(t, presenter.PlaceholderDescription, cur.Shown)
}

func TestCurrent_NotFoundInThumbView(t *testing.T) {
	env := newAPIEnv(t, "Volcano")
	do(t, env.h.HandleView, http.MethodPost, "/api/view/thumbs", "", "view", "thumbs")

	rr := do(t, env.h.HandleCurrent, http.MethodGet, "/api/slides/current", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPreview(t *testing.T) {
	env := newAPIEnv(t, "Volcano")
	uid := env.uids["Volcano"]

	rr := do(t, env.h.HandlePreview, http.MethodGet, "/api/slides/"+uid+"/preview.png", "", "uid", uid)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	_, err := png.Decode(rr.Body)
	assert.NoError(t, err)

	rr = do(t, env.h.HandlePreview, http.MethodGet, "/api/slides/nope/preview.png", "", "uid", "nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =========================================================================
// NAVIGATION AND VIEW
// =========================================================================

func TestNav(t *testing.T) {
	env := newAPIEnv(t, "a", "b", "c")

	tests := []struct {
		dir      string
		position float64
	}{
		{"next", 2},
		{"last", 3},
		{"next", 1}, // wraps
		{"prev", 3}, // wraps back
		{"first", 1},
	}
	for _, tt := range tests {
		rr := do(t, env.h.HandleNav, http.MethodPost, "/api/nav/"+tt.dir, "", "dir", tt.dir)
		require.Equal(t, http.StatusOK, rr.Code, tt.dir)
		assert.Equal(t, tt.position, decodeFrame(t, rr)["position"], tt.dir)
	}

	rr := do(t, env.h.HandleNav, http.MethodPost, "/api/nav/sideways", "", "dir", "sideways")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_error", errorType(t, rr))
}

func TestView(t *testing.T) {
	env := newAPIEnv(t, "a", "b", "c", "d")

	rr := do(t, env.h.HandleView, http.MethodPost, "/api/view/thumbs", "", "view", "thumbs")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeFrame(t, rr)
	assert.Equal(t, "thumbs", got["view"])
	assert.Len(t, got["thumbs"], 4)

	rr = do(t, env.h.HandleView, http.MethodPost, "/api/view/grid", "", "view", "grid")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAutoplayAndInterval(t *testing.T) {
	env := newAPIEnv(t, "a", "b")

	rr := do(t, env.h.HandleAutoplay, http.MethodPost, "/api/autoplay", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeFrame(t, rr)["playing"])

	rr = do(t, env.h.HandleInterval, http.MethodPut, "/api/autoplay/interval", `{"seconds": 30}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 30, decodeFrame(t, rr)["interval"])

	rr = do(t, env.h.HandleInterval, http.MethodPut, "/api/autoplay/interval", `{"seconds": 7}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, env.h.HandleInterval, http.MethodPut, "/api/autoplay/interval", `{"seconds":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, env.h.HandleAutoplay, http.MethodPost, "/api/autoplay", "")
	assert.Equal(t, false, decodeFrame(t, rr)["playing"])
}

// =========================================================================
// EDITS AND SAVE
// =========================================================================

func TestEditThenSave(t *testing.T) {
	env := newAPIEnv(t, "Volcano")
	uid := env.uids["Volcano"]

	rr := do(t, env.h.HandleTitle, http.MethodPut, "/api/slides/"+uid+"/title", `{"title":"Big volcano"}`, "uid", uid)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, env.h.HandleDescription, http.MethodPut, "/api/slides/"+uid+"/description", `{"description":"it erupts"}`, "uid", uid)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, env.h.HandleComment, http.MethodPost, "/api/slides/"+uid+"/comments", `{"message":"wow"}`, "uid", uid)
	require.Equal(t, http.StatusOK, rr.Code)

	slide := decodeFrame(t, rr)["slide"].(map[string]any)
	assert.Equal(t, "Big volcano", slide["title"])
	assert.Len(t, slide["comments"], 1)

	rr = do(t, env.h.HandleSave, http.MethodPost, "/api/save", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var saved handler.SaveResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&saved))
	assert.Equal(t, 1, saved.Saved)

	doc, err := env.db.Get(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, "Big volcano", doc.Meta(model.MetaTitle))
	assert.Equal(t, "it erupts", doc.Meta(model.MetaDescription))
	assert.Contains(t, doc.Meta(model.MetaComments), `"wow"`)
}

func TestEdit_Errors(t *testing.T) {
	env := newAPIEnv(t, "Volcano")
	uid := env.uids["Volcano"]

	rr := do(t, env.h.HandleTitle, http.MethodPut, "/api/slides/nope/title", `{"title":"x"}`, "uid", "nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, env.h.HandleComment, http.MethodPost, "/api/slides/"+uid+"/comments", `{"message":""}`, "uid", uid)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, env.h.HandleStar, http.MethodPost, "/api/slides/nope/star", "", "uid", "nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStar(t *testing.T) {
	env := newAPIEnv(t, "a", "b")
	uid := env.uids["a"]

	rr := do(t, env.h.HandleStar, http.MethodPost, "/api/slides/"+uid+"/star", "", "uid", uid)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeFrame(t, rr)["count"], "unstarred slide leaves the sequence")
}

func TestReorder(t *testing.T) {
	env := newAPIEnv(t, "a", "b", "c")

	// Reordering needs the grid.
	rr := do(t, env.h.HandleReorder, http.MethodPost, "/api/reorder",
		`{"press":"`+env.uids["a"]+`","release":"`+env.uids["c"]+`"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	do(t, env.h.HandleView, http.MethodPost, "/api/view/thumbs", "", "view", "thumbs")
	rr = do(t, env.h.HandleReorder, http.MethodPost, "/api/reorder",
		`{"press":"`+env.uids["a"]+`","release":"`+env.uids["c"]+`","dx":50,"dy":0}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var titles []string
	for _, s := range env.ctl.Slides() {
		titles = append(titles, s.Title)
	}
	assert.Equal(t, []string{"c", "b", "a"}, titles)

	rr = do(t, env.h.HandleReorder, http.MethodPost, "/api/reorder", `{"dx":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =========================================================================
// JOURNAL AND AUDIO
// =========================================================================

func TestRescan_PicksUpNewFavorites(t *testing.T) {
	env := newAPIEnv(t, "a")
	ctx := context.Background()
	doc, err := env.db.Create(ctx)
	require.NoError(t, err)
	doc.SetMeta(model.MetaTitle, "late")
	doc.SetMeta(model.MetaKeep, "1")
	require.NoError(t, env.db.Write(ctx, doc, origin.WriteOptions{}))

	rr := do(t, env.h.HandleRescan, http.MethodPost, "/api/rescan", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, decodeFrame(t, rr)["count"])
}

func TestExport(t *testing.T) {
	env := newAPIEnv(t, "Volcano", "Bridge")

	rr := do(t, env.h.HandleExport, http.MethodPost, "/api/export/html", "", "format", "html")
	require.Equal(t, http.StatusCreated, rr.Code)
	var doc model.Document
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&doc))
	assert.Equal(t, model.MimeHTML, doc.Metadata[model.MetaMimeType])
	assert.Equal(t, "ana Portfolio", doc.Metadata[model.MetaTitle])

	stored, err := env.db.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	body, err := afero.ReadFile(env.fs, stored.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Volcano")

	rr = do(t, env.h.HandleExport, http.MethodPost, "/api/export/docx", "", "format", "docx")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAudio_NoDevices(t *testing.T) {
	env := newAPIEnv(t, "Volcano")

	rr := do(t, env.h.HandleRecord, http.MethodPost, "/api/audio/record", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unavailable", errorType(t, rr))

	rr = do(t, env.h.HandlePlay, http.MethodPost, "/api/audio/play", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStoppedLoop(t *testing.T) {
	env := newAPIEnv(t, "Volcano")
	h := handler.NewSlideshowHandler(env.ctl, env.portfol, stopped{}, env.logger)

	rr := do(t, h.HandleSession, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

// =========================================================================
// VIEWER
// =========================================================================

func TestViewer(t *testing.T) {
	env := newAPIEnv(t, "Volcano")
	v, err := handler.NewViewerHandler(env.ctl, inline{}, "Science fair", env.logger)
	require.NoError(t, err)

	rr := do(t, v.HandleViewer, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	page := rr.Body.String()
	assert.Contains(t, page, "Science fair")
	assert.Contains(t, page, "Volcano")
	assert.Contains(t, page, presenter.PlaceholderDescription)
}

func TestNewViewerHandler_ParsesTemplate(t *testing.T) {
	v, err := handler.NewViewerHandler(nil, nil, "Portfolio", quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestViewer_ThumbsAndPlaceholder(t *testing.T) {
	env := newAPIEnv(t, "Volcano", "Rainbow")
	v, err := handler.NewViewerHandler(env.ctl, inline{}, "Science fair", env.logger)
	require.NoError(t, err)

	env.ctl.ShowThumbs()
	rr := do(t, v.HandleViewer, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := rr.Body.String()
	assert.Contains(t, page, `class="grid"`)
	assert.Contains(t, page, "Rainbow")

	empty := newAPIEnv(t)
	v, err = handler.NewViewerHandler(empty.ctl, inline{}, "Science fair", empty.logger)
	require.NoError(t, err)
	rr = do(t, v.HandleViewer, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `class="placeholder"`)
	assert.NotContains(t, rr.Body.String(), `class="slide"`)
}
