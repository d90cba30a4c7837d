package presenter

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/engine"
	"github.com/sakif/portfolio/internal/loop/looptest"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/protocol"
	"github.com/sakif/portfolio/internal/session"
	"github.com/sakif/portfolio/internal/slidestore"
)

// =========================================================================
// FAKES
// =========================================================================

type fakeJournal struct {
	starred []string // uids FindStarred loads, in order
	sounds  map[string]*model.Sound
	saved   map[string]string // uid → clip path
	store   *slidestore.Store
	err     error
}

func (j *fakeJournal) FindStarred(context.Context) (int, error) {
	if j.err != nil {
		return 0, j.err
	}
	j.store.MarkAllInactive()
	for _, uid := range j.starred {
		if s := j.store.Find(uid); s != nil {
			s.Active, s.Fav = true, true
			continue
		}
		_ = j.store.Append(model.NewSlide(uid, "ana", model.DefaultColors, uid, "", nil, nil))
	}
	return len(j.starred), nil
}

func (j *fakeJournal) SearchAudioNote(_ context.Context, s *model.Slide) (*model.Sound, error) {
	if s.Sound == nil {
		s.Sound = j.sounds[s.UID]
	}
	return s.Sound, nil
}

func (j *fakeJournal) SaveRecording(_ context.Context, s *model.Slide, clip string) (*model.Sound, error) {
	j.saved[s.UID] = clip
	s.Sound = &model.Sound{DocumentID: "note-" + s.UID, FilePath: clip}
	return s.Sound, nil
}

type fakeDevice struct {
	started, stopped int
	complete         bool
	played           []string
}

func (d *fakeDevice) Start() error           { d.started++; return nil }
func (d *fakeDevice) Stop() error            { d.stopped++; return nil }
func (d *fakeDevice) Complete() bool         { return d.complete }
func (d *fakeDevice) Output() string         { return "/rec/output.ogg" }
func (d *fakeDevice) Play(path string) error { d.played = append(d.played, path); return nil }

type recorder struct{ msgs []protocol.Message }

func (r *recorder) Send(m protocol.Message) error {
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) commands() []string {
	var out []string
	for _, m := range r.msgs {
		out = append(out, m.Command)
	}
	return out
}

// =========================================================================
// HELPERS
// =========================================================================

type env struct {
	ctl     *Controller
	eng     *engine.Engine
	store   *slidestore.Store
	state   *session.State
	sched   *looptest.Manual
	journal *fakeJournal
	dev     *fakeDevice
	frames  []Frame
}

func newEnv(t *testing.T, role session.Role) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := session.New("ana", model.Colors{"#112233", "#445566"})
	switch role {
	case session.Host:
		require.NoError(t, state.BecomeHost())
	case session.Guest:
		require.NoError(t, state.BecomeGuest())
	}
	store := slidestore.New()
	sched := looptest.New()
	eng := engine.New(store, state, sched, logger)
	e := &env{
		eng: eng, store: store, state: state, sched: sched,
		journal: &fakeJournal{store: store, sounds: map[string]*model.Sound{}, saved: map[string]string{}},
		dev:     &fakeDevice{},
	}
	e.ctl = New(eng, sched, e.journal, Options{
		Recorder: e.dev,
		Player:   e.dev,
		Surface:  SurfaceFunc(func(f Frame) { e.frames = append(e.frames, f) }),
		Width:    800,
		Height:   600,
	}, logger)
	return e
}

// add appends slides; names starting with "-" are unfavorited, "~" inactive.
func (e *env) add(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		uid := strings.TrimLeft(n, "-~")
		s := model.NewSlide(uid, "ana", model.DefaultColors, uid, "", nil, nil)
		switch n[0] {
		case '-':
			s.Fav = false
		case '~':
			s.Active = false
		}
		require.NoError(t, e.store.Append(s))
	}
}

func (e *env) last() Frame { return e.frames[len(e.frames)-1] }

func (e *env) currentUID() string {
	if s := e.ctl.Current(); s != nil {
		return s.UID
	}
	return ""
}

// =========================================================================
// NAVIGATION
// =========================================================================

func TestNext_SkipsUnfavorited(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "-B", "C")
	e.ctl.First()
	require.Equal(t, "A", e.currentUID())

	e.ctl.Next()

	assert.Equal(t, "C", e.currentUID())
}

func TestNextPrev_Wrap(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "~B", "C", "-D")
	e.ctl.Last()
	require.Equal(t, "C", e.currentUID())

	e.ctl.Next()
	assert.Equal(t, "A", e.currentUID())

	e.ctl.Prev()
	assert.Equal(t, "C", e.currentUID())
}

func TestNavigation_NothingToShowTerminates(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "-A", "~B", "-C")

	e.ctl.Next()
	e.ctl.Prev()
	e.ctl.First()

	assert.Nil(t, e.ctl.Current())
	assert.Equal(t, PlaceholderEmpty, e.last().Placeholder)
	assert.Nil(t, e.last().Slide)
}

func TestEmptyStore_Placeholders(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.ctl.Refresh()
	assert.Equal(t, PlaceholderEmpty, e.last().Placeholder)

	g := newEnv(t, session.Guest)
	g.ctl.Refresh()
	assert.Equal(t, PlaceholderWaiting, g.last().Placeholder)
}

func TestFrame_SlideView(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "-B", "C")
	e.ctl.First()
	e.ctl.Next()

	f := e.last()
	require.NotNil(t, f.Slide)
	assert.Equal(t, "C", f.Slide.UID)
	assert.Equal(t, PlaceholderDescription, f.Slide.Shown)
	assert.Equal(t, 2, f.Position)
	assert.Equal(t, 2, f.Count)
	assert.True(t, f.Slide.HasPrev)
	assert.False(t, f.Slide.HasNext)
	assert.True(t, f.Slide.CanRecord)
	assert.Equal(t, 10, f.Seconds)
}

// =========================================================================
// AUTOPLAY
// =========================================================================

func TestAutoplay_FirstTickShowsCurrentSlide(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B", "C")
	e.ctl.First()
	e.ctl.Next()
	require.Equal(t, "B", e.currentUID())

	e.ctl.ToggleAutoplay()
	assert.Equal(t, "B", e.currentUID(), "first tick stays on the current slide")
	assert.True(t, e.ctl.Playing())

	e.sched.Advance(DefaultInterval)
	assert.Equal(t, "C", e.currentUID())
	e.sched.Advance(DefaultInterval)
	assert.Equal(t, "A", e.currentUID(), "autoplay wraps")

	e.ctl.ToggleAutoplay()
	assert.False(t, e.ctl.Playing())
	assert.Zero(t, e.sched.Active())
	e.sched.Advance(time.Minute)
	assert.Equal(t, "A", e.currentUID())
}

func TestAutoplay_SecondStartDoesNotBackUp(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B", "C")
	e.ctl.First()
	e.ctl.ToggleAutoplay()
	e.ctl.ToggleAutoplay()
	require.Equal(t, "A", e.currentUID())

	e.ctl.ToggleAutoplay()

	assert.Equal(t, "B", e.currentUID())
}

func TestAutoplay_StopsWhenNothingLeft(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B")
	e.ctl.First()
	e.ctl.ToggleAutoplay()

	e.store.Find("A").Fav = false
	e.store.Find("B").Fav = false
	e.sched.Advance(DefaultInterval)

	assert.False(t, e.ctl.Playing())
	assert.Zero(t, e.sched.Active())
	assert.Equal(t, PlaceholderEmpty, e.last().Placeholder)
}

func TestAutoplay_PlaysNotes(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B")
	e.journal.sounds["B"] = &model.Sound{FilePath: "/notes/b.ogg"}
	e.ctl.First()
	e.ctl.Next()
	assert.Empty(t, e.dev.played, "notes only play during autoplay")

	e.ctl.ToggleAutoplay()

	assert.Equal(t, []string{"/notes/b.ogg"}, e.dev.played)
}

func TestAutoplay_Interval(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B")
	e.ctl.First()

	assert.ErrorIs(t, e.ctl.SetInterval(5*time.Second), apperror.ErrValidation)
	require.NoError(t, e.ctl.SetInterval(2*time.Second))
	e.ctl.ToggleAutoplay()
	e.sched.Advance(2 * time.Second)

	assert.Equal(t, "B", e.currentUID())
}

func TestAutoplay_StoppedByThumbs(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B")
	e.ctl.First()
	e.ctl.ToggleAutoplay()

	e.ctl.ShowThumbs()

	assert.False(t, e.ctl.Playing())
	assert.Zero(t, e.sched.Active())
}

// =========================================================================
// THUMBNAILS
// =========================================================================

func TestShowThumbs_GridLayout(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "-B", "C", "~D", "E")

	e.ctl.ShowThumbs()

	f := e.last()
	assert.Equal(t, ViewThumbs, f.View)
	require.Len(t, f.Thumbs, 4, "every active slide, starred or not")
	// 4 active → 2×2 grid of 400×300 cells on an 800 wide surface.
	assert.Equal(t, image.Rect(0, 0, 400, 300), f.Thumbs[0].Rect)
	assert.Equal(t, image.Rect(400, 0, 800, 300), f.Thumbs[1].Rect)
	assert.Equal(t, image.Rect(0, 300, 400, 600), f.Thumbs[2].Rect)
	assert.False(t, f.Thumbs[1].Fav)
	assert.Equal(t, "B", f.Thumbs[1].UID)
	assert.NotNil(t, f.Thumbs[0].Image)
}

func TestShowThumbs_RemembersCursor(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B", "C")
	e.ctl.First()
	e.ctl.Next()

	e.ctl.ShowThumbs()
	assert.Equal(t, 0, e.store.Cursor())

	e.ctl.ShowSlides()
	assert.Equal(t, "B", e.currentUID())
}

func TestHitTest(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B")
	e.ctl.ShowThumbs()

	hit, ok := e.ctl.HitTest(2, 2)
	require.True(t, ok)
	assert.Equal(t, Hit{UID: "A", Star: true}, hit)

	hit, ok = e.ctl.HitTest(500, 100)
	require.True(t, ok)
	assert.Equal(t, Hit{UID: "B"}, hit)

	_, ok = e.ctl.HitTest(100, 590)
	assert.False(t, ok)
}

func TestRelease_Click(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B", "C")
	e.ctl.ShowThumbs()

	require.NoError(t, e.ctl.Release("C", "C", 10, 9))

	assert.Equal(t, ViewSlides, e.ctl.View())
	assert.Equal(t, "C", e.currentUID())
}

func TestRelease_DragShifts(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B", "C", "D")
	e.ctl.ShowThumbs()

	require.NoError(t, e.ctl.Release("B", "B", 0, 40))
	assert.Equal(t, []string{"A", "C", "D", "B"}, e.store.UIDs())

	require.NoError(t, e.ctl.Release("D", "", 5, -40))
	assert.Equal(t, []string{"D", "A", "C", "B"}, e.store.UIDs())
	assert.Equal(t, ViewThumbs, e.ctl.View())
}

func TestRelease_OnOtherThumbSwaps(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A", "B", "C")
	e.ctl.ShowThumbs()

	require.NoError(t, e.ctl.Release("A", "C", 300, 0))

	assert.Equal(t, []string{"C", "B", "A"}, e.store.UIDs())
	assert.Equal(t, image.Rect(0, 0, 400, 300), e.last().Thumbs[0].Rect)
	assert.Equal(t, "C", e.last().Thumbs[0].UID)
}

func TestRelease_Errors(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A")
	assert.ErrorIs(t, e.ctl.Release("A", "A", 0, 0), apperror.ErrValidation)

	e.ctl.ShowThumbs()
	assert.ErrorIs(t, e.ctl.Release("Z", "A", 0, 0), apperror.ErrNotFound)
	assert.ErrorIs(t, e.ctl.Release("A", "Z", 50, 0), apperror.ErrNotFound)
}

func TestToggleStar_UpdatesGridAndPeers(t *testing.T) {
	e := newEnv(t, session.Host)
	rec := &recorder{}
	e.eng.SetTransport(rec)
	e.add(t, "A", "B")
	e.ctl.ShowThumbs()

	require.NoError(t, e.ctl.ToggleStar("B"))

	assert.False(t, e.store.Find("B").Fav)
	assert.False(t, e.last().Thumbs[1].Fav)
	assert.Equal(t, []string{protocol.CmdUpdateStar}, rec.commands())
}

// =========================================================================
// SYNC
// =========================================================================

func TestGuest_WaitsThenShowsFirstAnnounce(t *testing.T) {
	e := newEnv(t, session.Guest)
	e.ctl.Refresh()
	require.Equal(t, PlaceholderWaiting, e.last().Placeholder)

	ev, err := protocol.Encode(protocol.AnnounceSlide{UID: "x1", Title: "Intro", Owner: "rosa"})
	require.NoError(t, err)
	e.eng.Handle(ev)

	f := e.last()
	require.NotNil(t, f.Slide)
	assert.Equal(t, "Intro", f.Slide.Title)
	assert.False(t, f.Slide.CanRecord)
	assert.False(t, f.Waiting)
}

func TestRescan_HostResetsAndReannounces(t *testing.T) {
	e := newEnv(t, session.Host)
	rec := &recorder{}
	e.eng.SetTransport(rec)
	e.journal.starred = []string{"A", "B"}

	require.NoError(t, e.ctl.Rescan(context.Background()))
	e.sched.RunIdle()

	assert.Equal(t, []string{protocol.CmdReset, protocol.CmdAnnounceSlide, protocol.CmdAnnounceSlide}, rec.commands())
	assert.Equal(t, "A", e.currentUID())
}

func TestRescan_Rules(t *testing.T) {
	g := newEnv(t, session.Guest)
	assert.ErrorIs(t, g.ctl.Rescan(context.Background()), apperror.ErrForbidden)

	e := newEnv(t, session.Undecided)
	e.journal.err = errors.New("db locked")
	assert.Error(t, e.ctl.Rescan(context.Background()))
}

// =========================================================================
// AUDIO NOTES
// =========================================================================

func TestRecord_PollsUntilComplete(t *testing.T) {
	e := newEnv(t, session.Undecided)
	e.add(t, "A")
	e.ctl.First()

	require.NoError(t, e.ctl.ToggleRecord())
	assert.True(t, e.last().Recording)
	assert.ErrorIs(t, e.ctl.Play(), apperror.ErrConflict, "device is busy")

	require.NoError(t, e.ctl.ToggleRecord())
	assert.True(t, e.last().Saving)
	assert.Equal(t, 1, e.sched.Active())

	e.sched.Advance(3 * PollInterval)
	assert.Empty(t, e.journal.saved, "not complete yet")
	assert.ErrorIs(t, e.ctl.ToggleRecord(), apperror.ErrConflict)

	e.dev.complete = true
	e.sched.Advance(PollInterval)

	assert.Equal(t, "/rec/output.ogg", e.journal.saved["A"])
	assert.Zero(t, e.sched.Active(), "poll timer is cancelled")
	assert.False(t, e.last().Saving)
	assert.Equal(t, 1, e.dev.started)
	assert.Equal(t, 1, e.dev.stopped)

	require.NoError(t, e.ctl.Play())
	assert.Equal(t, []string{"/rec/output.ogg"}, e.dev.played)
}

func TestRecord_Rules(t *testing.T) {
	g := newEnv(t, session.Guest)
	assert.ErrorIs(t, g.ctl.ToggleRecord(), apperror.ErrForbidden)

	e := newEnv(t, session.Undecided)
	assert.ErrorIs(t, e.ctl.ToggleRecord(), apperror.ErrValidation, "no slide selected")

	e.add(t, "A")
	e.ctl.First()
	assert.ErrorIs(t, e.ctl.Play(), apperror.ErrNotFound, "no note yet")
}
