// Package slidestore holds the ordered slide sequence of the current session.
//
// ORDER IS DATA:
// The position of a slide in the backing list is the presentation order.
// Users change it by dragging thumbnails, so the store exposes swap and shift
// rather than a sort.
//
// NEVER DELETE:
// Slides are only ever appended. "Removal" is Active=false, and a later rescan
// can bring the slide back. This keeps a guest's copy intact when a rescan on
// the host races with its edits.
//
// The store is not safe for concurrent use. It is owned by the event loop
// goroutine (see internal/loop) and every mutation runs there.
package slidestore

import (
	"iter"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/model"
)

// Store is the ordered collection of slides plus the cursor index.
type Store struct {
	slides []*model.Slide
	cursor int
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Len returns the number of slides, active or not.
func (s *Store) Len() int {
	return len(s.slides)
}

// At returns the slide at raw position i, or nil when i is out of range.
func (s *Store) At(i int) *model.Slide {
	if i < 0 || i >= len(s.slides) {
		return nil
	}
	return s.slides[i]
}

// Append adds a slide at the end of the sequence.
// A uid that is already present is rejected with a Conflict error.
func (s *Store) Append(slide *model.Slide) error {
	if slide.UID == "" {
		return apperror.ValidationFailed("uid", "slide uid is required")
	}
	if s.IndexOf(slide.UID) >= 0 {
		return apperror.Conflict("slide", slide.UID)
	}
	s.slides = append(s.slides, slide)
	return nil
}

// Find returns the slide with the given uid, or nil.
//
// A linear scan is fine here: a session holds a few dozen slides.
func (s *Store) Find(uid string) *model.Slide {
	if i := s.IndexOf(uid); i >= 0 {
		return s.slides[i]
	}
	return nil
}

// IndexOf returns the raw position of uid, or -1.
func (s *Store) IndexOf(uid string) int {
	for i, slide := range s.slides {
		if slide.UID == uid {
			return i
		}
	}
	return -1
}

// Swap exchanges the slides at raw positions i and j.
// Everything else keeps its relative order.
func (s *Store) Swap(i, j int) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if err := s.checkIndex(j); err != nil {
		return err
	}
	s.slides[i], s.slides[j] = s.slides[j], s.slides[i]
	return nil
}

// Shift moves the slide at i to one end of the sequence by adjacent swaps.
//
// With toEnd the slides after i move one step towards the start and the
// dragged slide takes the last position; otherwise the slides before i move
// one step towards the end and the dragged slide takes position 0.
// Because every step is a swap, the uid set is the same after each step.
// It returns the new position of the moved slide.
func (s *Store) Shift(i int, toEnd bool) (int, error) {
	if err := s.checkIndex(i); err != nil {
		return i, err
	}
	if toEnd {
		for ; i < len(s.slides)-1; i++ {
			s.slides[i], s.slides[i+1] = s.slides[i+1], s.slides[i]
		}
		return i, nil
	}
	for ; i > 0; i-- {
		s.slides[i], s.slides[i-1] = s.slides[i-1], s.slides[i]
	}
	return i, nil
}

// MarkAllInactive sets Active=false on every slide.
func (s *Store) MarkAllInactive() {
	for _, slide := range s.slides {
		slide.Active = false
	}
}

// CountActive returns how many slides are active, favorited or not.
func (s *Store) CountActive() int {
	n := 0
	for _, slide := range s.slides {
		if slide.Active {
			n++
		}
	}
	return n
}

// Active yields (raw position, slide) for every active slide in order.
//
// The sequence reads the backing list on every iteration, so it can be
// ranged over again after the store changes and never goes stale.
func (s *Store) Active() iter.Seq2[int, *model.Slide] {
	return s.filter(func(sl *model.Slide) bool { return sl.Active })
}

// Displayable yields (raw position, slide) for active and favorited slides.
func (s *Store) Displayable() iter.Seq2[int, *model.Slide] {
	return s.filter((*model.Slide).Displayable)
}

// All yields every slide in order.
func (s *Store) All() iter.Seq2[int, *model.Slide] {
	return s.filter(func(*model.Slide) bool { return true })
}

func (s *Store) filter(keep func(*model.Slide) bool) iter.Seq2[int, *model.Slide] {
	return func(yield func(int, *model.Slide) bool) {
		for i := 0; i < len(s.slides); i++ {
			if !keep(s.slides[i]) {
				continue
			}
			if !yield(i, s.slides[i]) {
				return
			}
		}
	}
}

// UIDs returns the uids in presentation order.
func (s *Store) UIDs() []string {
	uids := make([]string, len(s.slides))
	for i, slide := range s.slides {
		uids[i] = slide.UID
	}
	return uids
}

// Cursor returns the current raw index.
func (s *Store) Cursor() int {
	return s.cursor
}

// SetCursor moves the cursor. Out of range values are allowed and mean
// "nothing selected"; callers check with At.
func (s *Store) SetCursor(i int) {
	s.cursor = i
}

// Clear empties the sequence and resets the cursor.
// Only used when a process becomes a guest and drops its local slides.
func (s *Store) Clear() {
	s.slides = nil
	s.cursor = 0
}

func (s *Store) checkIndex(i int) error {
	if i < 0 || i >= len(s.slides) {
		return apperror.ValidationFailed("index", "slide index out of range")
	}
	return nil
}
