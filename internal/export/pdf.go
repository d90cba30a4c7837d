package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/sakif/portfolio/internal/preview"
)

// Page geometry in points: a 600×800 sheet, title at the top, the preview
// in a 300×225 box at (10,150), the description below it.
const (
	pdfWidth     = 600
	pdfHeight    = 800
	pdfTitleSize = 40
	pdfBodySize  = 12
)

// WritePDF writes one page per slide.
func WritePDF(w io.Writer, d Deck) error {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pdfWidth, Ht: pdfHeight},
	})
	pdf.SetTitle(d.Nick+" Portfolio", true)
	pdf.SetAuthor(d.Nick, true)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, p := range d.Pages {
		pdf.AddPage()
		pdf.SetTextColor(0, 0, 0)

		pdf.SetFont("Helvetica", "", pdfTitleSize)
		pdf.Text(10, 50, tr(p.DisplayTitle()))

		if p.Preview != nil {
			raw, err := preview.PNG(preview.Fit(p.Preview, preview.Width, preview.Height))
			if err != nil {
				return fmt.Errorf("export: page %d preview: %w", i, err)
			}
			name := fmt.Sprintf("slide%d", i)
			opts := fpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(raw))
			pdf.ImageOptions(name, 10, 150, preview.Width, preview.Height, false, opts, 0, "")
		}

		if p.Description != "" {
			pdf.SetFont("Helvetica", "", pdfBodySize)
			pdf.SetXY(10, 400)
			pdf.MultiCell(pdfWidth-20, pdfBodySize+4, tr(p.Description), "", "L", false)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export: writing pdf: %w", err)
	}
	return nil
}
