package engine

import (
	"log/slog"
	"slices"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/preview"
	"github.com/sakif/portfolio/internal/protocol"
)

// =========================================================================
// LOCAL EDITS
// =========================================================================
//
// Each local edit updates the store first, so the UI responds at once, then
// echoes the new value to the peers. Only an authoritative process (solo or
// host) marks the slide dirty; a guest's edit is persisted by the host when
// the echo arrives there.

// SetTitle changes a slide title locally and shares it.
func (e *Engine) SetTitle(uid, title string) error {
	slide, err := e.find(uid)
	if err != nil {
		return err
	}
	if slide.Title == title {
		return nil
	}
	slide.Title = title
	e.markLocal(slide)
	e.send(protocol.UpdateTitle{UID: uid, Title: title})
	return nil
}

// SetDescription changes a slide description locally and shares it.
func (e *Engine) SetDescription(uid, description string) error {
	slide, err := e.find(uid)
	if err != nil {
		return err
	}
	if slide.Description == description {
		return nil
	}
	slide.Description = description
	e.markLocal(slide)
	e.send(protocol.UpdateDescription{UID: uid, Description: description})
	return nil
}

// AddComment appends a comment from the local participant and shares the
// whole thread.
func (e *Engine) AddComment(uid, message string) error {
	slide, err := e.find(uid)
	if err != nil {
		return err
	}
	if message == "" {
		return apperror.ValidationFailed("message", "comment message is required")
	}
	slide.Comments = append(slide.Comments, model.Comment{
		From:      e.state.Nick,
		Message:   message,
		IconColor: e.state.MyColors.String(),
	})
	e.markLocal(slide)
	e.send(protocol.UpdateComment{UID: uid, Comments: slices.Clone(slide.Comments)})
	return nil
}

// SetStar changes the favorite flag locally and shares it. The star is not
// journal content, so it never marks the slide dirty.
func (e *Engine) SetStar(uid string, fav bool) error {
	slide, err := e.find(uid)
	if err != nil {
		return err
	}
	slide.Fav = fav
	e.send(protocol.UpdateStar{UID: uid, Fav: fav})
	return nil
}

func (e *Engine) find(uid string) (*model.Slide, error) {
	slide := e.store.Find(uid)
	if slide == nil {
		return nil, apperror.NotFound("slide", uid)
	}
	return slide, nil
}

func (e *Engine) markLocal(slide *model.Slide) {
	if e.state.Authoritative() {
		slide.Dirty = true
	}
}

// =========================================================================
// SHARING
// =========================================================================

// ShareNick announces the local participant.
func (e *Engine) ShareNick() {
	e.send(protocol.JoinAnnounce{Nick: e.state.Nick})
}

// ShareColors sends the local theme.
func (e *Engine) ShareColors() {
	e.send(protocol.ShareColors{Colors: e.state.Colors})
}

// SendReset tells peers a rescan is starting.
func (e *Engine) SendReset() {
	e.send(protocol.Reset{})
}

// ShareSlides announces every visible slide, one per idle slot so a large
// set does not hold up the loop.
//
// The slide is read when its slot runs, not now, so an edit made in between
// goes out with the announce.
func (e *Engine) ShareSlides() {
	if e.transport == nil {
		return
	}
	for _, slide := range e.store.Displayable() {
		uid := slide.UID
		e.sched.Idle(func() {
			if s := e.store.Find(uid); s != nil && s.Displayable() {
				e.announce(s)
			}
		})
	}
}

func (e *Engine) announce(slide *model.Slide) {
	ev := protocol.AnnounceSlide{
		UID:         slide.UID,
		Title:       slide.Title,
		Description: slide.Description,
		Comments:    slices.Clone(slide.Comments),
		Owner:       slide.Owner,
	}
	if slide.Preview != nil {
		b64, err := preview.ToBase64(slide.Preview, preview.Width, preview.Height)
		if err != nil {
			e.logger.Warn("encoding preview for announce", slog.String("uid", slide.UID), slog.String("error", err.Error()))
		} else {
			ev.Preview = &b64
		}
	}
	e.send(ev)
}

func (e *Engine) send(ev protocol.Event) {
	if e.transport == nil {
		return
	}
	msg, err := protocol.Encode(ev)
	if err != nil {
		e.logger.Error("encoding event", slog.String("command", ev.Command()), slog.String("error", err.Error()))
		return
	}
	if err := e.transport.Send(msg); err != nil {
		e.logger.Warn("sending event", slog.String("command", ev.Command()), slog.String("error", err.Error()))
		return
	}
	e.logger.Debug(">>> event", slog.String("command", ev.Command()))
}
