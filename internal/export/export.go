// Package export renders the visible slides to files the journal can keep:
// a PDF handout, a standalone HTML page, and an OpenDocument presentation.
//
// Renderers get a read-only Deck built from the slide store and never touch
// session state.
package export

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/sakif/portfolio/internal/model"
)

// Untitled is shown for slides without a title.
const Untitled = "untitled"

// Page is one slide as the renderers see it.
type Page struct {
	UID         string
	Title       string
	Description string
	Comments    []model.Comment
	Preview     image.Image // may be nil
	Audio       []byte      // ogg clip, may be nil
}

// Deck is everything a renderer needs.
type Deck struct {
	Nick   string
	Title  string
	Colors model.Colors
	Pages  []Page
}

// DisplayTitle returns the page title or Untitled.
func (p Page) DisplayTitle() string {
	if strings.TrimSpace(p.Title) == "" {
		return Untitled
	}
	return p.Title
}

// Format is an export file format.
type Format string

const (
	PDF  Format = "pdf"
	HTML Format = "html"
	ODP  Format = "odp"
)

// Formats lists the supported formats.
var Formats = []Format{PDF, HTML, ODP}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case PDF, HTML, ODP:
		return f, nil
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// MimeType returns the mime type written to the journal.
func (f Format) MimeType() string {
	switch f {
	case PDF:
		return model.MimePDF
	case HTML:
		return model.MimeHTML
	case ODP:
		return model.MimeODP
	}
	return "application/octet-stream"
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// DocumentTitle is the journal title of the exported document.
func (f Format) DocumentTitle(d Deck) string {
	if f == ODP {
		return d.Title + ".odp"
	}
	return d.Nick + " Portfolio"
}

// Render writes the deck in format f.
func Render(w io.Writer, f Format, d Deck) error {
	if len(d.Pages) == 0 {
		return fmt.Errorf("export: nothing to export")
	}
	switch f {
	case PDF:
		return WritePDF(w, d)
	case HTML:
		return WriteHTML(w, d)
	case ODP:
		return WriteODP(w, d, DefaultODPSize)
	}
	return fmt.Errorf("export: unknown format %q", f)
}
