package presenter

import (
	"image"
	"math"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/preview"
)

// ClickDistance2 is the squared drag distance under which a release on the
// pressed thumbnail counts as a click.
const ClickDistance2 = 200

// thumb is the side-table entry for one slide's grid cell.
type thumb struct {
	rect image.Rectangle
	star image.Rectangle
	img  image.Image // scaled to rect's size
	fav  bool
}

// layout places every active slide on an n×n grid, n = ceil(sqrt(active)),
// with 4:3 cells centered horizontally. Cached thumbnails are reused while
// the cell size stays the same.
func (c *Controller) layout() {
	n := int(math.Ceil(math.Sqrt(float64(c.store.CountActive()))))
	w := c.width
	if n > 0 {
		w = c.width / n
	}
	h := int(float64(w) * 0.75)
	xOff := (c.width - n*w) / 2
	starSize := max(w/8, 8)

	x, y := xOff, 0
	seen := make(map[string]bool)
	for _, slide := range c.store.Active() {
		seen[slide.UID] = true
		rect := image.Rect(x, y, x+w, y+h)

		t := c.thumbs[slide.UID]
		if t == nil || t.rect.Dx() != w || t.rect.Dy() != h {
			var img image.Image
			if slide.Preview != nil {
				img = preview.Fit(slide.Preview, w, h)
			} else {
				img = preview.Blank(w, h, c.state.Colors)
			}
			t = &thumb{img: img}
			c.thumbs[slide.UID] = t
		}
		t.rect = rect
		t.star = image.Rect(x, y, x+starSize, y+starSize)
		t.fav = slide.Fav

		x += w
		if x+w > c.width {
			x = xOff
			y += h
		}
	}

	for uid := range c.thumbs {
		if !seen[uid] {
			delete(c.thumbs, uid)
		}
	}
}

func (c *Controller) thumbFrames() []ThumbFrame {
	var out []ThumbFrame
	for _, slide := range c.store.Active() {
		t := c.thumbs[slide.UID]
		if t == nil {
			continue
		}
		out = append(out, ThumbFrame{
			UID:   slide.UID,
			Title: slide.Title,
			Fav:   slide.Fav,
			Rect:  t.rect,
			Star:  t.star,
			Image: t.img,
		})
	}
	return out
}

// Hit is what a point on the grid lands on.
type Hit struct {
	UID  string
	Star bool
}

// HitTest returns the thumbnail (or its star) under (x, y).
func (c *Controller) HitTest(x, y int) (Hit, bool) {
	if c.view != ViewThumbs {
		return Hit{}, false
	}
	p := image.Pt(x, y)
	for _, slide := range c.store.Active() {
		t := c.thumbs[slide.UID]
		if t == nil {
			continue
		}
		if p.In(t.star) {
			return Hit{UID: slide.UID, Star: true}, true
		}
		if p.In(t.rect) {
			return Hit{UID: slide.UID}, true
		}
	}
	return Hit{}, false
}

// Release finishes a press on thumbnail pressUID that was dragged by
// (dx, dy) and let go over releaseUID.
//
//   - same thumbnail, dx²+dy² < ClickDistance2: open that slide
//   - same thumbnail, dragged further: shift it to the end (dy > 0) or the
//     start (dy <= 0) of the sequence
//   - another thumbnail: swap the two
//
// An empty releaseUID (dropped on empty space) counts as the same thumbnail.
func (c *Controller) Release(pressUID, releaseUID string, dx, dy int) error {
	if c.view != ViewThumbs {
		return apperror.ValidationFailed("view", "reordering needs the thumbnail view")
	}
	i := c.store.IndexOf(pressUID)
	if i < 0 {
		return apperror.NotFound("slide", pressUID)
	}
	if releaseUID == "" {
		releaseUID = pressUID
	}

	if releaseUID == pressUID {
		if dx*dx+dy*dy < ClickDistance2 {
			c.store.SetCursor(i)
			c.current = i
			c.showSlide(1)
			return nil
		}
		if _, err := c.store.Shift(i, dy > 0); err != nil {
			return err
		}
	} else {
		j := c.store.IndexOf(releaseUID)
		if j < 0 {
			return apperror.NotFound("slide", releaseUID)
		}
		if err := c.store.Swap(i, j); err != nil {
			return err
		}
	}

	c.layout()
	c.render()
	return nil
}
