package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/export"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/origin"
	"github.com/sakif/portfolio/internal/session"
	"github.com/sakif/portfolio/internal/slidestore"
)

// =========================================================================
// FAKE JOURNAL
// =========================================================================
//
// fakeJournal implements origin.Store in memory. Write snapshots the payload
// it points at, the way the real store copies it in, so tests can delete
// temp files and still inspect what was stored.

type fakeJournal struct {
	fs       afero.Fs
	docs     map[string]*model.Document
	order    []string
	payloads map[string][]byte
	nextID   int

	failWrite map[string]bool // ids whose Write fails
	writes    []origin.WriteOptions
}

func newFakeJournal(fs afero.Fs) *fakeJournal {
	return &fakeJournal{
		fs:        fs,
		docs:      make(map[string]*model.Document),
		payloads:  make(map[string][]byte),
		failWrite: make(map[string]bool),
	}
}

func (f *fakeJournal) Find(_ context.Context, flt origin.Filter) ([]*model.Document, int, error) {
	var out []*model.Document
	for _, id := range f.order {
		d := f.docs[id]
		if flt.Keep && !d.Favorited() {
			continue
		}
		if len(flt.MimeTypes) > 0 && !slices.Contains(flt.MimeTypes, d.Meta(model.MetaMimeType)) {
			continue
		}
		if flt.TagContains != "" && !strings.Contains(d.Meta(model.MetaTags), flt.TagContains) {
			continue
		}
		out = append(out, copyDoc(d))
	}
	return out, len(out), nil
}

func (f *fakeJournal) Get(_ context.Context, id string) (*model.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, apperror.NotFound("document", id)
	}
	return copyDoc(d), nil
}

func (f *fakeJournal) Create(_ context.Context) (*model.Document, error) {
	f.nextID++
	doc := model.NewDocument()
	doc.ID = fmt.Sprintf("doc-%d", f.nextID)
	return doc, nil
}

func (f *fakeJournal) Write(_ context.Context, doc *model.Document, opts origin.WriteOptions) error {
	if f.failWrite[doc.ID] {
		return errors.New("disk full")
	}
	if doc.FilePath != "" {
		data, err := afero.ReadFile(f.fs, doc.FilePath)
		if err != nil {
			return err
		}
		f.payloads[doc.ID] = data
	}
	if _, ok := f.docs[doc.ID]; !ok {
		f.order = append(f.order, doc.ID)
	}
	f.docs[doc.ID] = copyDoc(doc)
	f.writes = append(f.writes, opts)
	return nil
}

func (f *fakeJournal) Destroy(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return apperror.NotFound("document", id)
	}
	delete(f.docs, id)
	f.order = slices.DeleteFunc(f.order, func(s string) bool { return s == id })
	return nil
}

// put stores a document directly, bypassing Write bookkeeping.
func (f *fakeJournal) put(id string, meta map[string]string) {
	d := model.NewDocument()
	d.ID = id
	for k, v := range meta {
		d.SetMeta(k, v)
	}
	f.docs[id] = d
	f.order = append(f.order, id)
}

func copyDoc(d *model.Document) *model.Document {
	c := *d
	c.Metadata = make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// =========================================================================
// HELPERS
// =========================================================================

type testEnv struct {
	svc     *PortfolioService
	journal *fakeJournal
	fs      afero.Fs
	slides  *slidestore.Store
	state   *session.State
}

func newTestEnv(t *testing.T, role session.Role) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	journal := newFakeJournal(fs)
	slides := slidestore.New()
	state := session.New("ana", model.Colors{"#336699", "#ffcc00"})
	switch role {
	case session.Host:
		require.NoError(t, state.BecomeHost())
	case session.Guest:
		require.NoError(t, state.BecomeGuest())
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewPortfolioService(journal, fs, slides, state, "/work", "Science fair", logger)
	return &testEnv{svc: svc, journal: journal, fs: fs, slides: slides, state: state}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{0xff, 0, 0, 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func base64Std(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// =========================================================================
// FindStarred
// =========================================================================

func TestFindStarred_LoadsFavorites(t *testing.T) {
	env := newTestEnv(t, session.Undecided)
	comments, _ := json.Marshal([]model.Comment{{From: "bo", Message: "nice"}})
	env.journal.put("a", map[string]string{
		model.MetaKeep: "1", model.MetaTitle: "Volcano", model.MetaDescription: "hot",
		model.MetaComments: string(comments),
	})
	env.journal.put("b", map[string]string{model.MetaKeep: "0", model.MetaTitle: "Draft"})
	env.journal.put("c", map[string]string{model.MetaKeep: "1", model.MetaComments: "{broken"})

	n, err := env.svc.FindStarred(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "c"}, env.slides.UIDs())

	a := env.slides.Find("a")
	assert.Equal(t, "Volcano", a.Title)
	assert.Equal(t, "ana", a.Owner)
	assert.Equal(t, []model.Comment{{From: "bo", Message: "nice"}}, a.Comments)
	assert.True(t, a.Displayable())

	assert.Nil(t, env.slides.Find("c").Comments, "undecodable comments mean none")
}

func TestFindStarred_ReconcilesExistingSlides(t *testing.T) {
	env := newTestEnv(t, session.Host)
	env.journal.put("a", map[string]string{model.MetaKeep: "1", model.MetaTitle: "v1"})
	env.journal.put("b", map[string]string{model.MetaKeep: "1"})
	_, err := env.svc.FindStarred(context.Background())
	require.NoError(t, err)

	env.slides.Find("a").Fav = false
	env.journal.docs["a"].SetMeta(model.MetaTitle, "v2")
	require.NoError(t, env.journal.Destroy(context.Background(), "b"))

	_, err = env.svc.FindStarred(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, env.slides.UIDs(), "missing documents are kept, not deleted")
	a := env.slides.Find("a")
	assert.Equal(t, "v2", a.Title)
	assert.True(t, a.Fav)
	assert.True(t, a.Active)
	assert.False(t, env.slides.Find("b").Active)
}

func TestFindStarred_Previews(t *testing.T) {
	env := newTestEnv(t, session.Undecided)
	require.NoError(t, afero.WriteFile(env.fs, "/journal/pic.png", pngBytes(t, 600, 450), 0o644))
	env.journal.put("img", map[string]string{model.MetaKeep: "1", model.MetaMimeType: "image/png"})
	env.journal.docs["img"].FilePath = "/journal/pic.png"

	thumb := pngBytes(t, 30, 20)
	env.journal.put("txt", map[string]string{
		model.MetaKeep: "1", model.MetaMimeType: "text/plain",
		model.MetaPreview: base64Std(thumb),
	})
	env.journal.put("bad", map[string]string{model.MetaKeep: "1", model.MetaPreview: "!!!"})

	_, err := env.svc.FindStarred(context.Background())
	require.NoError(t, err)

	require.NotNil(t, env.slides.Find("img").Preview)
	assert.Equal(t, 300, env.slides.Find("img").Preview.Bounds().Dx())
	assert.NotNil(t, env.slides.Find("txt").Preview)
	assert.Nil(t, env.slides.Find("bad").Preview)
}

func TestFindStarred_GuestForbidden(t *testing.T) {
	env := newTestEnv(t, session.Guest)

	_, err := env.svc.FindStarred(context.Background())
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

// =========================================================================
// SaveChanges
// =========================================================================

func TestSaveChanges_WritesDirtySlides(t *testing.T) {
	env := newTestEnv(t, session.Host)
	env.journal.put("a", map[string]string{model.MetaKeep: "1", model.MetaTitle: "old"})
	env.journal.put("b", map[string]string{model.MetaKeep: "1", model.MetaTitle: "untouched"})
	_, err := env.svc.FindStarred(context.Background())
	require.NoError(t, err)

	a := env.slides.Find("a")
	a.Title = "new"
	a.Comments = []model.Comment{{From: "bo", Message: "hi", IconColor: "#000000,#ffffff"}}
	a.Dirty = true

	n, err := env.svc.SaveChanges(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.False(t, a.Dirty)
	assert.Equal(t, "new", env.journal.docs["a"].Meta(model.MetaTitle))
	assert.JSONEq(t, `[{"from":"bo","message":"hi","icon-color":"#000000,#ffffff"}]`,
		env.journal.docs["a"].Meta(model.MetaComments))
	assert.Equal(t, "untouched", env.journal.docs["b"].Meta(model.MetaTitle))
	require.Len(t, env.journal.writes, 1)
	assert.True(t, env.journal.writes[0].PreserveMtime)
}

func TestSaveChanges_FailuresAreIndependent(t *testing.T) {
	env := newTestEnv(t, session.Undecided)
	env.journal.put("a", map[string]string{model.MetaKeep: "1"})
	env.journal.put("b", map[string]string{model.MetaKeep: "1"})
	_, err := env.svc.FindStarred(context.Background())
	require.NoError(t, err)
	env.slides.Find("a").Dirty = true
	env.slides.Find("b").Dirty = true
	env.journal.failWrite["a"] = true

	n, err := env.svc.SaveChanges(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, n)
	assert.True(t, env.slides.Find("a").Dirty, "failed slide stays dirty for a retry")
	assert.False(t, env.slides.Find("b").Dirty)
}

func TestSaveChanges_GuestSkips(t *testing.T) {
	env := newTestEnv(t, session.Guest)
	s := model.NewSlide("x", "host", model.DefaultColors, "t", "", nil, nil)
	s.Dirty = true
	require.NoError(t, env.slides.Append(s))

	n, err := env.svc.SaveChanges(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, env.journal.writes)
}

// =========================================================================
// AUDIO NOTES
// =========================================================================

func TestSaveRecording_CreatesThenReusesNote(t *testing.T) {
	env := newTestEnv(t, session.Undecided)
	slide := model.NewSlide("x1", "ana", model.DefaultColors, "Intro", "", nil, nil)
	require.NoError(t, env.slides.Append(slide))
	require.NoError(t, afero.WriteFile(env.fs, "/rec/output.ogg", []byte("OggS-1"), 0o644))

	snd, err := env.svc.SaveRecording(context.Background(), slide, "/rec/output.ogg")
	require.NoError(t, err)

	doc := env.journal.docs[snd.DocumentID]
	assert.Equal(t, "audio note for Intro", doc.Meta(model.MetaTitle))
	assert.Equal(t, "x1", doc.Meta(model.MetaTags))
	assert.Equal(t, model.MimeAudioOgg, doc.Meta(model.MetaMimeType))
	assert.Equal(t, "#336699,#ffcc00", doc.Meta(model.MetaIconColor))
	assert.Equal(t, []byte("OggS-1"), env.journal.payloads[snd.DocumentID])
	assert.Same(t, snd, slide.Sound)

	require.NoError(t, afero.WriteFile(env.fs, "/rec/output.ogg", []byte("OggS-2"), 0o644))
	slide.Sound = nil
	snd2, err := env.svc.SaveRecording(context.Background(), slide, "/rec/output.ogg")
	require.NoError(t, err)

	assert.Equal(t, snd.DocumentID, snd2.DocumentID, "one note per slide")
	assert.Equal(t, []byte("OggS-2"), env.journal.payloads[snd.DocumentID])
	exists, _ := afero.Exists(env.fs, "/work/x1.ogg")
	assert.False(t, exists, "staged clip is cleaned up")
}

func TestSearchAudioNote(t *testing.T) {
	env := newTestEnv(t, session.Host)
	env.journal.put("note", map[string]string{model.MetaMimeType: model.MimeAudioOgg, model.MetaTags: "x1"})
	env.journal.put("other", map[string]string{model.MetaMimeType: "image/png", model.MetaTags: "x1"})
	slide := model.NewSlide("x1", "ana", model.DefaultColors, "", "", nil, nil)
	none := model.NewSlide("x2", "ana", model.DefaultColors, "", "", nil, nil)

	snd, err := env.svc.SearchAudioNote(context.Background(), slide)
	require.NoError(t, err)
	require.NotNil(t, snd)
	assert.Equal(t, "note", snd.DocumentID)
	assert.Same(t, snd, slide.Sound, "result is cached on the slide")

	snd, err = env.svc.SearchAudioNote(context.Background(), none)
	require.NoError(t, err)
	assert.Nil(t, snd)
}

func TestAudioNotes_GuestRules(t *testing.T) {
	env := newTestEnv(t, session.Guest)
	env.journal.put("note", map[string]string{model.MetaMimeType: model.MimeAudioOgg, model.MetaTags: "x1"})
	slide := model.NewSlide("x1", "host", model.DefaultColors, "", "", nil, nil)

	snd, err := env.svc.SearchAudioNote(context.Background(), slide)
	require.NoError(t, err)
	assert.Nil(t, snd)

	_, err = env.svc.SaveRecording(context.Background(), slide, "/rec/output.ogg")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

// =========================================================================
// EXPORT
// =========================================================================

func TestExport_RoundTripsIntoJournal(t *testing.T) {
	env := newTestEnv(t, session.Undecided)
	env.journal.put("a", map[string]string{model.MetaKeep: "1", model.MetaTitle: "Volcano"})
	env.journal.put("note", map[string]string{model.MetaMimeType: model.MimeAudioOgg, model.MetaTags: "a"})
	env.journal.docs["note"].FilePath = "/journal/note.ogg"
	require.NoError(t, afero.WriteFile(env.fs, "/journal/note.ogg", []byte("OggS"), 0o644))
	_, err := env.svc.FindStarred(context.Background())
	require.NoError(t, err)

	doc, err := env.svc.Export(context.Background(), export.HTML)
	require.NoError(t, err)

	stored := env.journal.docs[doc.ID]
	assert.Equal(t, "ana Portfolio", stored.Meta(model.MetaTitle))
	assert.Equal(t, model.MimeHTML, stored.Meta(model.MetaMimeType))
	html := string(env.journal.payloads[doc.ID])
	assert.Contains(t, html, "Volcano")
	assert.Contains(t, html, "data:audio/ogg;base64,T2dnUw==")

	tmps, _ := afero.Glob(env.fs, "/work/export-*")
	assert.Empty(t, tmps, "temp file is removed")
}

func TestExport_ODPTitle(t *testing.T) {
	env := newTestEnv(t, session.Undecided)
	env.journal.put("a", map[string]string{model.MetaKeep: "1"})
	_, err := env.svc.FindStarred(context.Background())
	require.NoError(t, err)

	doc, err := env.svc.Export(context.Background(), export.ODP)
	require.NoError(t, err)

	assert.Equal(t, "Science fair.odp", env.journal.docs[doc.ID].Meta(model.MetaTitle))
}

func TestExport_NothingToExport(t *testing.T) {
	env := newTestEnv(t, session.Undecided)

	_, err := env.svc.Export(context.Background(), export.PDF)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeck_GuestUsesHostNick(t *testing.T) {
	env := newTestEnv(t, session.Guest)
	env.state.SetHostNick("rosa")
	env.state.AddPeer("dee")
	require.NoError(t, env.slides.Append(model.NewSlide("x", "rosa", model.DefaultColors, "t", "", nil, nil)))
	hidden := model.NewSlide("y", "rosa", model.DefaultColors, "t", "", nil, nil)
	hidden.Fav = false
	require.NoError(t, env.slides.Append(hidden))

	deck := env.svc.Deck(context.Background())

	assert.Equal(t, "rosa", deck.Nick)
	require.Len(t, deck.Pages, 1)
	assert.Equal(t, "x", deck.Pages[0].UID)
}

// =========================================================================
// IMPORT / LIST / REMOVE
// =========================================================================

func TestImport(t *testing.T) {
	env := newTestEnv(t, session.Undecided)
	require.NoError(t, afero.WriteFile(env.fs, "/home/ana/Volcano.PNG", pngBytes(t, 40, 30), 0o644))

	doc, err := env.svc.Import(context.Background(), "/home/ana/Volcano.PNG", ImportOptions{Star: true})
	require.NoError(t, err)

	stored := env.journal.docs[doc.ID]
	assert.Equal(t, "Volcano", stored.Meta(model.MetaTitle))
	assert.Equal(t, "image/png", stored.Meta(model.MetaMimeType))
	assert.True(t, stored.Favorited())
	assert.NotEmpty(t, stored.Meta(model.MetaPreview))

	_, err = env.svc.Import(context.Background(), "  ", ImportOptions{})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListAndRemove(t *testing.T) {
	env := newTestEnv(t, session.Host)
	env.journal.put("a", nil)
	env.journal.put("b", nil)

	require.NoError(t, env.svc.Remove(context.Background(), "a"))
	docs, err := env.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	assert.ErrorIs(t, env.svc.Remove(context.Background(), "zzz"), apperror.ErrNotFound)
	assert.ErrorIs(t, env.svc.Remove(context.Background(), ""), apperror.ErrValidation)
}
