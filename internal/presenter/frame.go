package presenter

import (
	"image"
	"time"

	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/session"
)

// View is the presentation mode.
type View int

const (
	ViewSlides View = iota
	ViewThumbs
)

func (v View) String() string {
	if v == ViewThumbs {
		return "thumbs"
	}
	return "slides"
}

func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// ParseView reads "slides" or "thumbs".
func ParseView(s string) (View, bool) {
	switch s {
	case "slides":
		return ViewSlides, true
	case "thumbs":
		return ViewThumbs, true
	}
	return ViewSlides, false
}

// Placeholder texts.
const (
	PlaceholderDescription = "This project is about..."
	PlaceholderEmpty       = "Do you have any items in your Journal starred?"
	PlaceholderWaiting     = "Please wait."
)

// Frame is a snapshot of everything a surface draws. It is built on the loop
// goroutine and owns its data, so it can be handed to another goroutine.
type Frame struct {
	View     View          `json:"view"`
	Role     session.Role  `json:"role"`
	Nick     string        `json:"nick"`
	Roster   []string      `json:"roster"`
	Colors   model.Colors  `json:"colors"`
	Playing  bool          `json:"playing"`
	Interval time.Duration `json:"-"`
	Seconds  int           `json:"interval"`

	Recording bool `json:"recording"`
	Saving    bool `json:"saving"`
	Waiting   bool `json:"waiting"`

	// Placeholder is set instead of Slide when there is nothing to show.
	Placeholder string `json:"placeholder,omitempty"`

	Slide  *SlideFrame  `json:"slide,omitempty"`
	Thumbs []ThumbFrame `json:"thumbs,omitempty"`

	// Position is the 1-based rank of the current slide among the
	// displayable ones; Count is how many there are.
	Position int `json:"position"`
	Count    int `json:"count"`
}

// SlideFrame is the slide view of one slide.
type SlideFrame struct {
	Index       int             `json:"index"`
	UID         string          `json:"uid"`
	Owner       string          `json:"owner"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Shown       string          `json:"shown"` // description or its placeholder
	Comments    []model.Comment `json:"comments"`
	Fav         bool            `json:"fav"`
	HasSound    bool            `json:"hasSound"`
	CanRecord   bool            `json:"canRecord"`
	HasPrev     bool            `json:"hasPrev"`
	HasNext     bool            `json:"hasNext"`
	Preview     image.Image     `json:"-"`
}

// ThumbFrame is one cell of the thumbnail grid.
type ThumbFrame struct {
	UID   string          `json:"uid"`
	Title string          `json:"title"`
	Fav   bool            `json:"fav"`
	Rect  image.Rectangle `json:"rect"`
	Star  image.Rectangle `json:"star"`
	Image image.Image     `json:"-"`
}

// Surface draws frames. Render is called on the loop goroutine and must not
// block; the TUI forwards the frame to its own goroutine.
type Surface interface {
	Render(Frame)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(Frame)

func (f SurfaceFunc) Render(fr Frame) { f(fr) }

// SlideInfo is one row of the slide list.
type SlideInfo struct {
	Index    int    `json:"index"`
	UID      string `json:"uid"`
	Owner    string `json:"owner"`
	Title    string `json:"title"`
	Fav      bool   `json:"fav"`
	Active   bool   `json:"active"`
	Dirty    bool   `json:"dirty"`
	HasSound bool   `json:"hasSound"`
	Comments int    `json:"comments"`
}
