package export

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"io"

	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/preview"
)

// The page is self-contained: images and audio are inlined as data URIs.
var htmlTemplate = template.Must(template.New("portfolio").Parse(`<!DOCTYPE html>
<html>
<head>
<!-- Created by Portfolio -->
<meta http-equiv="content-type" content="text/html; charset=UTF-8"/>
<title>{{.Nick}} Portfolio</title>
<style type="text/css">
body {background-color: {{.Background}};}
p.head {font-size: 18pt; font-weight: bold; font-family: "Sans";}
p.body {font-size: 12pt; font-weight: regular; font-family: "Sans";}
div.box {width: 630px; padding: 10px; border: 5px; margin: 7px; background: {{.Box}};}
</style>
</head>
<body><center>
{{range $i, $p := .Pages}}
<a name="slide{{$i}}"></a>
<div class="box">
<p class="head">{{$p.Title}}</p>
{{if $p.Image}}<img width="300" height="225" alt="Image" src="{{$p.Image}}"/>{{end}}
{{if $p.Description}}<p class="body">{{$p.Description}}</p>{{end}}
{{range $p.Comments}}<p class="body"><b>{{.From}}</b>: {{.Message}}</p>
{{end}}{{if $p.Audio}}<audio controls src="{{$p.Audio}}"></audio>{{end}}
</div>
{{end}}
</center></body>
</html>
`))

type htmlPage struct {
	Title       string
	Description string
	Comments    []model.Comment
	Image       template.URL
	Audio       template.URL
}

type htmlDeck struct {
	Nick       string
	Background template.CSS
	Box        template.CSS
	Pages      []htmlPage
}

// WriteHTML writes a single standalone HTML page with an anchor per slide.
func WriteHTML(w io.Writer, d Deck) error {
	data := htmlDeck{
		Nick: d.Nick,
		// Normalized to #rrggbb, so safe inside the stylesheet.
		Background: template.CSS(hexColor(d.Colors[0])),
		Box:        template.CSS(hexColor(d.Colors[1])),
	}
	for i, p := range d.Pages {
		hp := htmlPage{
			Title:       p.DisplayTitle(),
			Description: p.Description,
			Comments:    p.Comments,
		}
		if p.Preview != nil {
			raw, err := preview.PNG(preview.Fit(p.Preview, preview.Width, preview.Height))
			if err != nil {
				return fmt.Errorf("export: page %d preview: %w", i, err)
			}
			hp.Image = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))
		}
		if len(p.Audio) > 0 {
			hp.Audio = template.URL("data:audio/ogg;base64," + base64.StdEncoding.EncodeToString(p.Audio))
		}
		data.Pages = append(data.Pages, hp)
	}

	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("export: writing html: %w", err)
	}
	return nil
}

func hexColor(s string) string {
	c := preview.ParseHex(s)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
