// Package preview turns document payloads into slide preview images and
// back into the portable base64 PNG form used on the wire and in metadata.
//
// A preview that cannot be decoded is not an error for callers: the
// functions here return nil and the slide is shown without an image.
package preview

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	// Decoders register themselves with image.Decode.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/spf13/afero"
	"golang.org/x/image/draw"

	"github.com/sakif/portfolio/internal/model"
)

// Size of previews sent over the channel and embedded in exports.
const (
	Width  = 300
	Height = 225
)

// Load decodes an image file and scales it to fit w×h.
// It returns nil when the file is missing or not an image.
func Load(fs afero.Fs, path string, w, h int) image.Image {
	if path == "" {
		return nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return Fit(img, w, h)
}

// FromBase64 decodes a base64 encoded image, or returns nil.
func FromBase64(s string) image.Image {
	if s == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	return img
}

// ToBase64 scales img to fit w×h and encodes it as a base64 PNG.
func ToBase64(img image.Image, w, h int) (string, error) {
	raw, err := PNG(Fit(img, w, h))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// PNG encodes img.
func PNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("preview: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Fit scales img down (or up) to the largest size inside w×h that keeps
// the aspect ratio. Images that already fit exactly are returned as is.
func Fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || w <= 0 || h <= 0 {
		return img
	}
	if b.Dx() == w && b.Dy() <= h || b.Dy() == h && b.Dx() <= w {
		return img
	}

	sw := w
	sh := b.Dy() * w / b.Dx()
	if sh > h {
		sh = h
		sw = b.Dx() * h / b.Dy()
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(sw, 1), max(sh, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Blank returns a w×h image filled with the fill color and outlined with
// the stroke color.
func Blank(w, h int, colors model.Colors) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stroke := ParseHex(colors[0])
	fill := ParseHex(colors[1])
	draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	for x := 0; x < w; x++ {
		img.Set(x, 0, stroke)
		img.Set(x, h-1, stroke)
	}
	for y := 0; y < h; y++ {
		img.Set(0, y, stroke)
		img.Set(w-1, y, stroke)
	}
	return img
}

// ParseHex parses "#rgb" or "#rrggbb". Anything else is white.
func ParseHex(s string) color.RGBA {
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return white
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return white
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xff}
}
