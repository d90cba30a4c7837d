// Package presenter drives what the user sees: the cursor, the slide and
// thumbnail views, autoplay, reordering and audio notes.
//
// The Controller runs on the event loop goroutine like the engine. It never
// blocks: autoplay and the wait for a finished recording are loop timers.
// Display handles (thumbnail images, star hit boxes) live in a side table
// keyed by uid, so slides carry no pointers into the presentation.
//
// CURSOR:
// The cursor is a raw index into the slide store. Navigation steps it and
// then skips slides that are inactive or unfavorited, wrapping at the ends.
// The skip is bounded by the slide count, so a store with nothing to show
// ends in a placeholder instead of a loop.
package presenter

import (
	"context"
	"image"
	"log/slog"
	"slices"
	"time"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/audio"
	"github.com/sakif/portfolio/internal/engine"
	"github.com/sakif/portfolio/internal/loop"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/session"
	"github.com/sakif/portfolio/internal/slidestore"
)

// Intervals are the autoplay intervals offered to the user.
var Intervals = []time.Duration{2 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second}

// DefaultInterval is the autoplay interval until the user picks another.
const DefaultInterval = 10 * time.Second

// Journal is what the controller needs from the journal adapter
// (service.PortfolioService).
type Journal interface {
	FindStarred(ctx context.Context) (int, error)
	SearchAudioNote(ctx context.Context, slide *model.Slide) (*model.Sound, error)
	SaveRecording(ctx context.Context, slide *model.Slide, clipPath string) (*model.Sound, error)
}

// Options are the optional collaborators of a Controller.
type Options struct {
	Recorder audio.Recorder // nil: recording is unavailable
	Player   audio.Player   // nil: notes are not played
	Surface  Surface        // nil: nothing is drawn
	Width    int
	Height   int
	Interval time.Duration
}

// Controller is the presentation state machine.
type Controller struct {
	eng     *engine.Engine
	store   *slidestore.Store
	state   *session.State
	sched   loop.Scheduler
	journal Journal
	logger  *slog.Logger

	rec     audio.Recorder
	player  audio.Player
	surface Surface

	width, height int

	view        View
	placeholder string
	current     int  // cursor remembered while the grid is shown
	firstTime   bool // next autoplay start shows the current slide first

	playing  bool
	interval time.Duration
	autoplay loop.Handle

	recording bool
	saving    bool
	recordUID string
	poll      loop.Handle

	thumbs map[string]*thumb
}

var _ engine.Observer = (*Controller)(nil)

// New creates a controller and registers it as the engine's observer.
func New(eng *engine.Engine, sched loop.Scheduler, journal Journal, opts Options, logger *slog.Logger) *Controller {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	if !slices.Contains(Intervals, opts.Interval) {
		opts.Interval = DefaultInterval
	}
	c := &Controller{
		eng:       eng,
		store:     eng.Store(),
		state:     eng.State(),
		sched:     sched,
		journal:   journal,
		logger:    logger,
		rec:       opts.Recorder,
		player:    opts.Player,
		surface:   opts.Surface,
		width:     opts.Width,
		height:    opts.Height,
		interval:  opts.Interval,
		firstTime: true,
		thumbs:    make(map[string]*thumb),
	}
	eng.SetObserver(c)
	return c
}

// SetSurface replaces the surface and draws the current frame on it.
func (c *Controller) SetSurface(s Surface) {
	c.surface = s
	c.render()
}

// SetSize changes the drawing area and lays the grid out again.
func (c *Controller) SetSize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	c.width, c.height = w, h
	c.Refresh()
}

// View returns the current mode.
func (c *Controller) View() View { return c.view }

// Playing reports whether autoplay runs.
func (c *Controller) Playing() bool { return c.playing }

// Interval returns the autoplay interval.
func (c *Controller) Interval() time.Duration { return c.interval }

// Refresh redraws the current view, moving the cursor only if the current
// slide is no longer displayable.
func (c *Controller) Refresh() {
	if c.view == ViewThumbs {
		c.layout()
		c.render()
		return
	}
	c.showSlide(1)
}

// Current returns the slide under the cursor, or nil.
func (c *Controller) Current() *model.Slide {
	if c.view != ViewSlides || c.placeholder != "" {
		return nil
	}
	return c.store.At(c.store.Cursor())
}

// =========================================================================
// NAVIGATION
// =========================================================================

// First shows the first displayable slide.
func (c *Controller) First() {
	c.store.SetCursor(0)
	c.showSlide(1)
}

// Last shows the last displayable slide.
func (c *Controller) Last() {
	c.store.SetCursor(c.store.Len() - 1)
	c.showSlide(-1)
}

// Next shows the next displayable slide, wrapping to the start.
func (c *Controller) Next() {
	c.step(1)
	c.showSlide(1)
}

// Prev shows the previous displayable slide, wrapping to the end.
func (c *Controller) Prev() {
	c.step(-1)
	c.showSlide(-1)
}

func (c *Controller) step(dir int) {
	n := c.store.Len()
	if n == 0 {
		return
	}
	i := c.store.Cursor() + dir
	switch {
	case i >= n:
		i = 0
	case i < 0:
		i = n - 1
	}
	c.store.SetCursor(i)
}

// skip returns the first displayable index from i in direction dir,
// wrapping. It gives up after visiting every slide once.
func (c *Controller) skip(i, dir int) (int, bool) {
	n := c.store.Len()
	if n == 0 {
		return 0, false
	}
	i = ((i % n) + n) % n
	for range n {
		if c.store.At(i).Displayable() {
			return i, true
		}
		i = (i + dir + n) % n
	}
	return 0, false
}

// showSlide switches to the slide view at the cursor, skipping in
// direction dir. While autoplay runs the slide's audio note is played.
func (c *Controller) showSlide(dir int) {
	c.view = ViewSlides
	c.placeholder = ""

	if c.store.Len() == 0 {
		c.placeholder = c.emptyText()
		c.stopAutoplay()
		c.render()
		return
	}

	i, ok := c.skip(c.store.Cursor(), dir)
	if !ok {
		c.logger.Debug("no stars: nothing to show")
		c.placeholder = c.emptyText()
		c.stopAutoplay()
		c.render()
		return
	}
	c.store.SetCursor(i)

	slide := c.store.At(i)
	if c.state.Authoritative() && c.journal != nil {
		snd, err := c.journal.SearchAudioNote(context.Background(), slide)
		if err != nil {
			c.logger.Warn("audio note lookup failed", slog.String("uid", slide.UID), slog.String("error", err.Error()))
		}
		if snd != nil && c.playing && c.player != nil && !c.recording {
			if err := c.player.Play(snd.FilePath); err != nil {
				c.logger.Warn("audio playback failed", slog.String("error", err.Error()))
			}
		}
	}
	c.render()
}

func (c *Controller) emptyText() string {
	if c.state.Role() == session.Guest && c.state.Waiting {
		return PlaceholderWaiting
	}
	return PlaceholderEmpty
}

// =========================================================================
// VIEWS
// =========================================================================

// ShowThumbs switches to the thumbnail grid. Autoplay stops, the cursor is
// remembered and reset to the start.
func (c *Controller) ShowThumbs() {
	c.stopAutoplay()
	if c.view == ViewSlides {
		c.current = c.store.Cursor()
	}
	c.view = ViewThumbs
	c.placeholder = ""
	c.firstTime = true
	c.layout()
	c.store.SetCursor(0)
	c.render()
}

// ShowSlides returns to the slide view at the remembered cursor.
func (c *Controller) ShowSlides() {
	if c.view == ViewThumbs {
		c.store.SetCursor(c.current)
	}
	c.showSlide(1)
}

// SetView switches to v.
func (c *Controller) SetView(v View) {
	if v == ViewThumbs {
		c.ShowThumbs()
		return
	}
	c.ShowSlides()
}

// =========================================================================
// AUTOPLAY
// =========================================================================

// ToggleAutoplay starts or stops autoplay. The first start after entering
// the slide view backs the cursor up one, so the first tick shows the slide
// the user was looking at.
func (c *Controller) ToggleAutoplay() {
	if c.playing {
		c.stopAutoplay()
		c.render()
		return
	}
	if c.view == ViewThumbs {
		c.view = ViewSlides
		c.store.SetCursor(c.current)
	}
	if c.firstTime {
		c.store.SetCursor(c.store.Cursor() - 1)
		c.firstTime = false
	}
	c.playing = true
	c.tick()
}

func (c *Controller) tick() {
	if !c.playing {
		return
	}
	c.store.SetCursor(c.store.Cursor() + 1)
	if c.store.Cursor() >= c.store.Len() || c.store.Cursor() < 0 {
		c.store.SetCursor(0)
	}
	c.showSlide(1)
	if c.playing {
		c.autoplay = c.sched.After(c.interval, c.tick)
	}
}

func (c *Controller) stopAutoplay() {
	c.playing = false
	if c.autoplay != nil {
		c.autoplay.Stop()
		c.autoplay = nil
	}
}

// SetInterval picks one of Intervals. A running autoplay uses it from the
// next tick on.
func (c *Controller) SetInterval(d time.Duration) error {
	if !slices.Contains(Intervals, d) {
		return apperror.ValidationFailed("interval", "interval must be 2, 10, 30 or 60 seconds")
	}
	c.interval = d
	c.render()
	return nil
}

// =========================================================================
// RESCAN AND EDITS
// =========================================================================

// Rescan reloads the favorites from the journal. A host first tells its
// guests to reset and announces the result afterwards.
func (c *Controller) Rescan(ctx context.Context) error {
	if !c.state.Authoritative() {
		return apperror.Forbidden("only the host can rescan")
	}
	host := c.state.Role() == session.Host
	if host {
		c.eng.SendReset()
	}
	if _, err := c.journal.FindStarred(ctx); err != nil {
		return err
	}
	c.store.SetCursor(0)
	if host {
		c.eng.ShareSlides()
	}
	if c.view == ViewThumbs {
		c.ShowThumbs()
	} else {
		c.showSlide(1)
	}
	return nil
}

// SetTitle edits a title and redraws.
func (c *Controller) SetTitle(uid, title string) error {
	if err := c.eng.SetTitle(uid, title); err != nil {
		return err
	}
	c.render()
	return nil
}

// SetDescription edits a description and redraws.
func (c *Controller) SetDescription(uid, description string) error {
	if err := c.eng.SetDescription(uid, description); err != nil {
		return err
	}
	c.render()
	return nil
}

// AddComment appends a comment and redraws.
func (c *Controller) AddComment(uid, message string) error {
	if err := c.eng.AddComment(uid, message); err != nil {
		return err
	}
	c.render()
	return nil
}

// ToggleStar flips the favorite flag of a slide.
func (c *Controller) ToggleStar(uid string) error {
	slide := c.store.Find(uid)
	if slide == nil {
		return apperror.NotFound("slide", uid)
	}
	if err := c.eng.SetStar(uid, !slide.Fav); err != nil {
		return err
	}
	c.render()
	return nil
}

// =========================================================================
// ENGINE OBSERVER
// =========================================================================

func (c *Controller) SlideAnnounced(*model.Slide, bool) { c.Refresh() }

func (c *Controller) SlideChanged(slide *model.Slide, field engine.Field) {
	if field == engine.FieldStar {
		if t := c.thumbs[slide.UID]; t != nil {
			t.fav = slide.Fav
		}
	}
	c.Refresh()
}

func (c *Controller) SlidesReset() { c.Refresh() }

func (c *Controller) PeerJoined(string) { c.render() }

func (c *Controller) ColorsChanged(model.Colors) {
	// Blank thumbnails are drawn in the session colors.
	clear(c.thumbs)
	c.Refresh()
}

// =========================================================================
// FRAME
// =========================================================================

// Frame builds a snapshot of the current view.
func (c *Controller) Frame() Frame {
	f := Frame{
		View:        c.view,
		Role:        c.state.Role(),
		Nick:        c.state.Nick,
		Roster:      c.state.Roster(),
		Colors:      c.state.Colors,
		Playing:     c.playing,
		Interval:    c.interval,
		Seconds:     int(c.interval / time.Second),
		Recording:   c.recording,
		Saving:      c.saving,
		Waiting:     c.state.Waiting,
		Placeholder: c.placeholder,
	}

	cursor := c.store.Cursor()
	for i := range c.store.Displayable() {
		f.Count++
		if i == cursor {
			f.Position = f.Count
		}
	}

	if c.view == ViewThumbs {
		f.Thumbs = c.thumbFrames()
		return f
	}
	if f.Placeholder != "" {
		return f
	}
	slide := c.store.At(cursor)
	if slide == nil {
		return f
	}

	shown := slide.Description
	if shown == "" {
		shown = PlaceholderDescription
	}
	f.Slide = &SlideFrame{
		Index:       cursor,
		UID:         slide.UID,
		Owner:       slide.Owner,
		Title:       slide.Title,
		Description: slide.Description,
		Shown:       shown,
		Comments:    slices.Clone(slide.Comments),
		Fav:         slide.Fav,
		HasSound:    slide.Sound != nil,
		CanRecord:   c.state.Authoritative() && c.rec != nil,
		HasPrev:     f.Position > 1,
		HasNext:     f.Position < f.Count,
		Preview:     slide.Preview,
	}
	return f
}

// Slides lists every slide in sequence order, shown or not.
func (c *Controller) Slides() []SlideInfo {
	out := make([]SlideInfo, 0, c.store.Len())
	for i, slide := range c.store.All() {
		out = append(out, SlideInfo{
			Index:    i,
			UID:      slide.UID,
			Owner:    slide.Owner,
			Title:    slide.Title,
			Fav:      slide.Fav,
			Active:   slide.Active,
			Dirty:    slide.Dirty,
			HasSound: slide.Sound != nil,
			Comments: len(slide.Comments),
		})
	}
	return out
}

// Preview returns the image of slide uid, or nil.
func (c *Controller) Preview(uid string) (image.Image, error) {
	slide := c.store.Find(uid)
	if slide == nil {
		return nil, apperror.NotFound("slide", uid)
	}
	return slide.Preview, nil
}

func (c *Controller) render() {
	if c.surface == nil {
		return
	}
	c.surface.Render(c.Frame())
}
