// Package engine is the session sync engine.
//
// It turns local edits into outbound events and applies inbound events from
// peers to the slide store. Every operation here runs on the event loop
// goroutine and runs to completion; nothing blocks and nothing returns an
// error to the caller. Bad frames are logged and dropped.
//
// MERGE RULES:
// All updates are last-writer-wins overwrites keyed by slide uid. Applying the
// same event twice leaves the store as applying it once (comments travel as
// the full thread, so they never accumulate). Events for a uid the store has
// not seen are dropped, not queued: the channel delivers one sender's events
// in order, and only the host announces slides, so an update can only outrun
// its announce when it comes from a different sender.
package engine

import (
	"image"
	"log/slog"
	"slices"

	"github.com/sakif/portfolio/internal/loop"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/preview"
	"github.com/sakif/portfolio/internal/protocol"
	"github.com/sakif/portfolio/internal/session"
	"github.com/sakif/portfolio/internal/slidestore"
)

// Transport sends one message to every other participant.
// Implementations must not block the loop for long; the channel package
// queues and returns.
type Transport interface {
	Send(msg protocol.Message) error
}

// Field names which part of a slide an event changed.
type Field int

const (
	FieldTitle Field = iota
	FieldDescription
	FieldComments
	FieldStar
)

// Observer is told about every change the engine applies, so the
// presentation surface can redraw. Callbacks run on the loop goroutine.
type Observer interface {
	SlideAnnounced(slide *model.Slide, created bool)
	SlideChanged(slide *model.Slide, field Field)
	SlidesReset()
	PeerJoined(nick string)
	ColorsChanged(colors model.Colors)
}

// NopObserver ignores everything. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) SlideAnnounced(*model.Slide, bool) {}
func (NopObserver) SlideChanged(*model.Slide, Field)  {}
func (NopObserver) SlidesReset()                      {}
func (NopObserver) PeerJoined(string)                 {}
func (NopObserver) ColorsChanged(model.Colors)        {}

// Engine applies and emits sync events.
type Engine struct {
	store     *slidestore.Store
	state     *session.State
	sched     loop.Scheduler
	transport Transport // nil while not sharing
	observer  Observer
	logger    *slog.Logger
}

// New creates an engine over the session's store and state.
func New(store *slidestore.Store, state *session.State, sched loop.Scheduler, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		state:    state,
		sched:    sched,
		observer: NopObserver{},
		logger:   logger,
	}
}

// SetTransport attaches the channel. Passing nil detaches it and the engine
// goes back to local-only operation.
func (e *Engine) SetTransport(t Transport) {
	e.transport = t
}

// SetObserver registers the change listener.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	e.observer = o
}

// State returns the session state the engine guards with.
func (e *Engine) State() *session.State {
	return e.state
}

// Store returns the slide store.
func (e *Engine) Store() *slidestore.Store {
	return e.store
}

// =========================================================================
// INBOUND
// =========================================================================

// Handle decodes and applies one inbound message.
func (e *Engine) Handle(msg protocol.Message) {
	ev, err := protocol.Decode(msg)
	if err != nil {
		e.logger.Warn("dropping inbound message",
			slog.String("command", msg.Command),
			slog.String("sender", msg.Sender),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Debug("<<< event", slog.String("command", msg.Command), slog.String("sender", msg.Sender))
	if j, ok := ev.(protocol.JoinAnnounce); ok && msg.Sender == protocol.HostSender && e.state.Role() == session.Guest {
		e.state.SetHostNick(j.Nick)
	}
	e.Apply(ev)
}

// Apply applies one decoded event.
func (e *Engine) Apply(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.AnnounceSlide:
		e.applyAnnounce(ev)
	case protocol.UpdateTitle:
		if slide := e.lookup(ev); slide != nil {
			slide.Title = ev.Title
			e.changed(slide, FieldTitle)
		}
	case protocol.UpdateDescription:
		if slide := e.lookup(ev); slide != nil {
			slide.Description = ev.Description
			e.changed(slide, FieldDescription)
		}
	case protocol.UpdateComment:
		if slide := e.lookup(ev); slide != nil {
			slide.Comments = slices.Clone(ev.Comments)
			e.changed(slide, FieldComments)
		}
	case protocol.UpdateStar:
		if slide := e.lookup(ev); slide != nil {
			slide.Fav = ev.Fav
			e.observer.SlideChanged(slide, FieldStar)
		}
	case protocol.Reset:
		e.applyReset()
	case protocol.JoinAnnounce:
		e.applyJoin(ev)
	case protocol.ShareColors:
		e.state.Colors = ev.Colors
		e.observer.ColorsChanged(ev.Colors)
	default:
		e.logger.Warn("unhandled event", slog.String("command", ev.Command()))
	}
}

func (e *Engine) lookup(ev protocol.Scoped) *model.Slide {
	slide := e.store.Find(ev.SlideUID())
	if slide == nil {
		e.logger.Debug("slide not found, dropping event",
			slog.String("command", ev.Command()),
			slog.String("uid", ev.SlideUID()),
		)
	}
	return slide
}

// changed marks a text change dirty on the host, which persists for everyone.
// Guests never persist.
func (e *Engine) changed(slide *model.Slide, field Field) {
	if e.state.Role() == session.Host {
		slide.Dirty = true
	}
	e.observer.SlideChanged(slide, field)
}

func (e *Engine) applyAnnounce(ev protocol.AnnounceSlide) {
	// Only the host originates uids. An announce reaching the host came from
	// a misbehaving guest.
	if e.state.Role() == session.Host {
		e.logger.Warn("ignoring slide announce sent to the host", slog.String("uid", ev.UID))
		return
	}

	img := decodePreview(ev.Preview)
	slide := e.store.Find(ev.UID)
	created := slide == nil
	if created {
		owner := ev.Owner
		if owner == "" {
			owner = e.state.HostNick()
		}
		if owner == "" {
			owner = e.state.LastPeer()
		}
		slide = model.NewSlide(ev.UID, owner, e.state.Colors, ev.Title, ev.Description, slices.Clone(ev.Comments), img)
		if err := e.store.Append(slide); err != nil {
			e.logger.Error("appending announced slide", slog.String("uid", ev.UID), slog.String("error", err.Error()))
			return
		}
		e.logger.Debug("loaded announced slide", slog.String("uid", ev.UID))
	} else {
		slide.Title = ev.Title
		slide.Preview = img
		slide.Description = ev.Description
		slide.Comments = slices.Clone(ev.Comments)
		slide.Active = true
		// Re-announcement re-favorites, even over a concurrent remote unstar.
		slide.Fav = true
		e.logger.Debug("refreshed announced slide", slog.String("uid", ev.UID))
	}

	e.state.Waiting = false
	e.observer.SlideAnnounced(slide, created)
}

func (e *Engine) applyReset() {
	if e.state.Role() == session.Host {
		e.logger.Warn("ignoring reset sent to the host")
		return
	}
	e.store.MarkAllInactive()
	e.observer.SlidesReset()
}

func (e *Engine) applyJoin(ev protocol.JoinAnnounce) {
	if e.state.AddPeer(ev.Nick) {
		e.logger.Info("participant joined", slog.String("nick", ev.Nick))
		e.observer.PeerJoined(ev.Nick)
	}
	if e.state.Role() != session.Host {
		return
	}
	// Full resync for the late joiner: who we are, our colors, then every
	// visible slide.
	e.ShareNick()
	e.ShareColors()
	e.ShareSlides()
}

func decodePreview(b64 *string) image.Image {
	if b64 == nil {
		return nil
	}
	return preview.FromBase64(*b64)
}
