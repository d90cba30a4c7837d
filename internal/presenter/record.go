package presenter

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/portfolio/internal/apperror"
)

// PollInterval is how often a stopped recording is checked for completion.
const PollInterval = 100 * time.Millisecond

// ToggleRecord starts recording an audio note for the current slide, or
// stops the running recording. After a stop the clip is saved once the
// recorder reports it complete; that is polled on a loop timer.
func (c *Controller) ToggleRecord() error {
	if !c.state.Authoritative() {
		return apperror.Forbidden("only the host can record audio notes")
	}
	if c.rec == nil {
		return apperror.Unavailable("no audio recorder configured")
	}

	if c.recording {
		c.recording = false
		if err := c.rec.Stop(); err != nil {
			c.render()
			return err
		}
		c.saving = true
		uid := c.recordUID
		c.poll = c.sched.Every(PollInterval, func() { c.pollRecording(uid) })
		c.render()
		return nil
	}

	if c.saving {
		return apperror.Conflict("recording", c.recordUID)
	}
	slide := c.Current()
	if slide == nil {
		return apperror.ValidationFailed("slide", "no slide selected")
	}
	if err := c.rec.Start(); err != nil {
		return err
	}
	c.recording = true
	c.recordUID = slide.UID
	c.logger.Info("recording audio note", slog.String("uid", slide.UID))
	c.render()
	return nil
}

func (c *Controller) pollRecording(uid string) {
	if c.poll == nil || !c.rec.Complete() {
		return
	}
	c.poll.Stop()
	c.poll = nil
	c.saving = false

	slide := c.store.Find(uid)
	if slide == nil {
		c.render()
		return
	}
	if _, err := c.journal.SaveRecording(context.Background(), slide, c.rec.Output()); err != nil {
		c.logger.Error("saving audio note failed", slog.String("uid", uid), slog.String("error", err.Error()))
	}
	c.render()
}

// Play plays the audio note of the current slide.
func (c *Controller) Play() error {
	if c.player == nil {
		return apperror.Unavailable("no audio player configured")
	}
	if c.recording {
		return apperror.Conflict("recording", c.recordUID)
	}
	slide := c.Current()
	if slide == nil {
		return apperror.ValidationFailed("slide", "no slide selected")
	}
	snd := slide.Sound
	if snd == nil && c.state.Authoritative() {
		var err error
		if snd, err = c.journal.SearchAudioNote(context.Background(), slide); err != nil {
			return err
		}
	}
	if snd == nil {
		return apperror.NotFound("audio note", slide.UID)
	}
	return c.player.Play(snd.FilePath)
}
