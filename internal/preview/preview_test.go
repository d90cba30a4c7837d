package preview

import (
	"image"
	"image/color"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/portfolio/internal/model"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{0x10, 0x20, 0x30, 0xff})
		}
	}
	return img
}

func TestFit(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{"wide", 600, 200, 300, 100},
		{"tall", 200, 600, 75, 225},
		{"same aspect", 1200, 900, 300, 225},
		{"already fits width", 300, 100, 300, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(solid(tt.w, tt.h), Width, Height)
			assert.Equal(t, tt.wantW, got.Bounds().Dx())
			assert.Equal(t, tt.wantH, got.Bounds().Dy())
		})
	}
}

func TestBase64RoundTrip(t *testing.T) {
	s, err := ToBase64(solid(40, 30), Width, Height)
	require.NoError(t, err)

	img := FromBase64(s)

	require.NotNil(t, img)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 225, img.Bounds().Dy())
}

func TestFromBase64_Garbage(t *testing.T) {
	assert.Nil(t, FromBase64(""))
	assert.Nil(t, FromBase64("!!!not base64"))
	assert.Nil(t, FromBase64("aGVsbG8=")) // "hello", not an image
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	raw, err := PNG(solid(60, 45))
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/pic.png", raw, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("text"), 0o644))

	img := Load(fs, "/pic.png", Width, Height)
	require.NotNil(t, img)
	assert.Equal(t, 300, img.Bounds().Dx())

	assert.Nil(t, Load(fs, "/notes.txt", Width, Height))
	assert.Nil(t, Load(fs, "/missing.png", Width, Height))
	assert.Nil(t, Load(fs, "", Width, Height))
}

func TestBlank(t *testing.T) {
	img := Blank(10, 8, model.Colors{"#ff0000", "#00ff00"})

	assert.Equal(t, color.RGBA{0xff, 0, 0, 0xff}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0xff, 0, 0xff}, img.RGBAAt(5, 4))
}

func TestParseHex(t *testing.T) {
	assert.Equal(t, color.RGBA{0xaa, 0xbb, 0xcc, 0xff}, ParseHex("#abc"))
	assert.Equal(t, color.RGBA{0x12, 0x34, 0x56, 0xff}, ParseHex("#123456"))
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, ParseHex("blue"))
}
