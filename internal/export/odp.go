package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/preview"
)

// Size is the pixel size slides are rendered at.
type Size struct {
	W, H int
}

// DefaultODPSize matches a 4:3 presentation page.
var DefaultODPSize = Size{W: 1024, H: 768}

const odpMime = model.MimeODP

// WriteODP renders every slide to an image and packs the images as the
// pages of an OpenDocument presentation.
func WriteODP(w io.Writer, d Deck, size Size) error {
	r, err := newSlideRenderer(size, d.Colors)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	// The mimetype entry must come first and be stored uncompressed.
	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("export: odp mimetype: %w", err)
	}
	if _, err := io.WriteString(mt, odpMime); err != nil {
		return fmt.Errorf("export: odp mimetype: %w", err)
	}

	pictures := make([]string, 0, len(d.Pages))
	for i, p := range d.Pages {
		var buf bytes.Buffer
		if err := r.render(&buf, p); err != nil {
			return fmt.Errorf("export: rendering slide %d: %w", i, err)
		}
		name := fmt.Sprintf("Pictures/slide_%d.png", i)
		if err := writeZipFile(zw, name, buf.Bytes()); err != nil {
			return err
		}
		pictures = append(pictures, name)
	}

	files := []struct {
		name string
		body string
	}{
		{"content.xml", odpContent(pictures)},
		{"styles.xml", odpStyles},
		{"meta.xml", odpMeta(d)},
		{"META-INF/manifest.xml", odpManifest(pictures)},
	}
	for _, f := range files {
		if err := writeZipFile(zw, f.name, []byte(f.body)); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("export: closing odp: %w", err)
	}
	return nil
}

func writeZipFile(zw *zip.Writer, name string, data []byte) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("export: odp entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("export: odp entry %s: %w", name, err)
	}
	return nil
}

// =========================================================================
// SLIDE RENDERING
// =========================================================================

type slideRenderer struct {
	size   Size
	colors model.Colors
	title  font.Face
	body   font.Face
}

func newSlideRenderer(size Size, colors model.Colors) (*slideRenderer, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("export: loading font: %w", err)
	}
	scale := float64(size.H) / 768
	return &slideRenderer{
		size:   size,
		colors: colors,
		title:  truetype.NewFace(f, &truetype.Options{Size: 40 * scale}),
		body:   truetype.NewFace(f, &truetype.Options{Size: 20 * scale}),
	}, nil
}

// render draws the slide view: canvas in the stroke color, title box,
// preview centered, description box underneath.
func (r *slideRenderer) render(w io.Writer, p Page) error {
	W, H := float64(r.size.W), float64(r.size.H)
	dc := gg.NewContext(r.size.W, r.size.H)

	dc.SetHexColor(hexColor(r.colors[0]))
	dc.Clear()

	// Title box.
	dc.SetHexColor(hexColor(r.colors[1]))
	dc.DrawRoundedRectangle(W*0.05, H*0.03, W*0.9, H*0.1, 8)
	dc.Fill()
	dc.SetHexColor("#000000")
	dc.SetFontFace(r.title)
	dc.DrawStringAnchored(p.DisplayTitle(), W/2, H*0.08, 0.5, 0.5)

	// Preview, scaled into the middle band.
	if p.Preview != nil {
		img := preview.Fit(p.Preview, int(W*0.6), int(H*0.5))
		b := img.Bounds()
		dc.DrawImageAnchored(img, int(W/2), int(H*0.16)+b.Dy()/2, 0.5, 0.5)
	} else {
		dc.DrawImageAnchored(preview.Blank(int(W*0.6), int(H*0.5), r.colors), int(W/2), int(H*0.41), 0.5, 0.5)
	}

	// Description box.
	dc.SetHexColor(hexColor(r.colors[1]))
	dc.DrawRoundedRectangle(W*0.05, H*0.7, W*0.9, H*0.26, 8)
	dc.Fill()
	dc.SetHexColor("#000000")
	dc.SetFontFace(r.body)
	dc.DrawStringWrapped(p.Description, W*0.07, H*0.72, 0, 0, W*0.86, 1.4, gg.AlignLeft)

	return dc.EncodePNG(w)
}

// =========================================================================
// PACKAGE XML
// =========================================================================

const (
	nsOffice       = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"`
	nsStyle        = `xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"`
	nsDraw         = `xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"`
	nsSVG          = `xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"`
	nsFO           = `xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"`
	nsXlink        = `xmlns:xlink="http://www.w3.org/1999/xlink"`
	nsPresentation = `xmlns:presentation="urn:oasis:names:tc:opendocument:xmlns:presentation:1.0"`
	nsMeta         = `xmlns:meta="urn:oasis:names:tc:opendocument:xmlns:meta:1.0"`
	nsDC           = `xmlns:dc="http://purl.org/dc/elements/1.1/"`
	nsManifest     = `xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0"`
)

func odpContent(pictures []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<office:document-content ` + strings.Join([]string{nsOffice, nsStyle, nsDraw, nsSVG, nsXlink, nsPresentation}, " ") + ` office:version="1.2">`)
	b.WriteString(`<office:body><office:presentation>`)
	for i, pic := range pictures {
		fmt.Fprintf(&b, `<draw:page draw:name="page%d" draw:master-page-name="Default">`, i+1)
		b.WriteString(`<draw:frame svg:width="28cm" svg:height="21cm" svg:x="0cm" svg:y="0cm">`)
		fmt.Fprintf(&b, `<draw:image xlink:href="%s" xlink:type="simple" xlink:show="embed" xlink:actuate="onLoad"/>`, pic)
		b.WriteString(`</draw:frame></draw:page>`)
	}
	b.WriteString(`</office:presentation></office:body></office:document-content>`)
	return b.String()
}

var odpStyles = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-styles ` + strings.Join([]string{nsOffice, nsStyle, nsFO}, " ") + ` office:version="1.2">` +
	`<office:automatic-styles><style:page-layout style:name="PM1">` +
	`<style:page-layout-properties fo:page-width="28cm" fo:page-height="21cm" style:print-orientation="landscape"/>` +
	`</style:page-layout></office:automatic-styles>` +
	`<office:master-styles><style:master-page style:name="Default" style:page-layout-name="PM1"/></office:master-styles>` +
	`</office:document-styles>`

func odpMeta(d Deck) string {
	var title, creator bytes.Buffer
	_ = xml.EscapeText(&title, []byte(d.Title))
	_ = xml.EscapeText(&creator, []byte(d.Nick))
	return `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<office:document-meta ` + strings.Join([]string{nsOffice, nsMeta, nsDC}, " ") + ` office:version="1.2">` +
		`<office:meta><dc:title>` + title.String() + `</dc:title><dc:creator>` + creator.String() + `</dc:creator>` +
		`<meta:generator>Portfolio</meta:generator></office:meta></office:document-meta>`
}

func odpManifest(pictures []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<manifest:manifest ` + nsManifest + ` manifest:version="1.2">`)
	fmt.Fprintf(&b, `<manifest:file-entry manifest:full-path="/" manifest:version="1.2" manifest:media-type="%s"/>`, odpMime)
	for _, name := range []string{"content.xml", "styles.xml", "meta.xml"} {
		fmt.Fprintf(&b, `<manifest:file-entry manifest:full-path="%s" manifest:media-type="text/xml"/>`, name)
	}
	for _, pic := range pictures {
		fmt.Fprintf(&b, `<manifest:file-entry manifest:full-path="%s" manifest:media-type="image/png"/>`, pic)
	}
	b.WriteString(`</manifest:manifest>`)
	return b.String()
}
