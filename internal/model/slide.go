// Package model defines the data structures shared by the slideshow packages.
//
// A Slide is plain data. Display handles (thumbnails, star icons) live in a
// side table owned by the presenter, keyed by uid, so nothing here points back
// into the presentation surface.
package model

import (
	"fmt"
	"image"
	"slices"
	"strings"
)

// Colors is a participant's two-color theme: stroke first, fill second.
// It marshals to a two-element JSON array.
type Colors [2]string

// DefaultColors is used when no profile colors are configured.
var DefaultColors = Colors{"#008000", "#00FF00"}

// ParseColors reads the "stroke,fill" form used in document metadata.
func ParseColors(s string) (Colors, error) {
	parts := strings.Split(strings.Trim(s, "[]"), ",")
	if len(parts) != 2 {
		return Colors{}, fmt.Errorf("model: colors %q must have two comma separated values", s)
	}
	return Colors{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])}, nil
}

// Stroke is the outline color.
func (c Colors) Stroke() string { return c[0] }

// Fill is the fill color.
func (c Colors) Fill() string { return c[1] }

// String returns the "stroke,fill" form.
func (c Colors) String() string {
	return c[0] + "," + c[1]
}

// Comment is one entry of a slide's comment thread.
// The JSON keys match the "comments" metadata stored in the journal.
type Comment struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	IconColor string `json:"icon-color"`
}

// Sound references an audio note stored as its own journal document.
type Sound struct {
	DocumentID string
	FilePath   string
}

// Slide is one entry in the presentation.
type Slide struct {
	UID         string
	Owner       string
	Colors      Colors
	Title       string
	Description string
	Comments    []Comment
	Preview     image.Image // nil when the document has no usable image

	// Sound is resolved lazily by the audio-note lookup and cached here.
	Sound *Sound

	Active bool // the backing document was seen by the last rescan
	Fav    bool // included in the visible sequence
	Dirty  bool // modified since the last write to the journal
}

// NewSlide returns an active, favorited slide.
func NewSlide(uid, owner string, colors Colors, title, description string, comments []Comment, preview image.Image) *Slide {
	return &Slide{
		UID:         uid,
		Owner:       owner,
		Colors:      colors,
		Title:       title,
		Description: description,
		Comments:    comments,
		Preview:     preview,
		Active:      true,
		Fav:         true,
	}
}

// Displayable reports whether the slide takes part in next/prev/autoplay.
func (s *Slide) Displayable() bool {
	return s.Active && s.Fav
}

// Clone returns a copy that shares the preview image but not the comment slice.
func (s *Slide) Clone() *Slide {
	c := *s
	c.Comments = slices.Clone(s.Comments)
	if s.Sound != nil {
		snd := *s.Sound
		c.Sound = &snd
	}
	return &c
}

// CommentText renders the thread the way the slide view shows it.
func CommentText(comments []Comment) string {
	var b strings.Builder
	for _, c := range comments {
		b.WriteString(c.From)
		b.WriteString(": ")
		b.WriteString(c.Message)
		b.WriteString("\n")
	}
	return b.String()
}
