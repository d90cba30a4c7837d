package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sakif/portfolio/internal/presenter"
)

// Surface carries frames from the event loop to the Bubble Tea program.
//
// Render runs on the loop goroutine and must not block, so it only keeps
// the newest frame and rings a one-slot bell. The model waits on the bell
// with a command and picks up whatever frame is newest by then; frames the
// terminal had no time to draw are skipped.
type Surface struct {
	mu     sync.Mutex
	latest presenter.Frame
	bell   chan struct{}
}

var _ presenter.Surface = (*Surface)(nil)

// NewSurface returns an empty surface.
func NewSurface() *Surface {
	return &Surface{bell: make(chan struct{}, 1)}
}

// Render implements presenter.Surface.
func (s *Surface) Render(f presenter.Frame) {
	s.mu.Lock()
	s.latest = f
	s.mu.Unlock()

	select {
	case s.bell <- struct{}{}:
	default:
	}
}

// frameMsg delivers a new frame to the model.
type frameMsg presenter.Frame

// wait blocks until a frame has been rendered since the last wait.
func (s *Surface) wait() tea.Cmd {
	return func() tea.Msg {
		<-s.bell
		s.mu.Lock()
		defer s.mu.Unlock()
		return frameMsg(s.latest)
	}
}
