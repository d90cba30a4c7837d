// Package tui is the terminal surface of a portfolio session.
//
// The Model never touches session state directly. Key presses become
// commands that run presenter calls on the event loop through Session.Do;
// what to draw comes back as frames through Surface. The two directions are
// independent, so a frame caused by a peer's edit is drawn the same way as
// one caused by a key press.
package tui

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sakif/portfolio/internal/export"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/presenter"
	"github.com/sakif/portfolio/internal/service"
)

// Session is what the viewer drives. app.App implements it.
type Session interface {
	Do(ctx context.Context, fn func() error) error
	Controller() *presenter.Controller
	Service() *service.PortfolioService
}

// field is the text field being edited, if any.
type field int

const (
	fieldNone field = iota
	fieldTitle
	fieldDescription
	fieldComment
)

func (f field) prompt() string {
	switch f {
	case fieldTitle:
		return "Title: "
	case fieldDescription:
		return "Description: "
	case fieldComment:
		return "Comment: "
	}
	return ""
}

// Options configures the viewer.
type Options struct {
	Context context.Context
	Session Session
	Surface *Surface
	Title   string
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx     context.Context
	session Session
	surface *Surface
	title   string

	keys     keyMap
	help     help.Model
	input    textinput.Model
	editing  field
	editUID  string
	showHelp bool

	frame    presenter.Frame
	ready    bool
	width    int
	height   int
	selected int // thumbnail under the keyboard cursor

	status    string
	statusErr bool
}

// New creates the viewer model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	title := opts.Title
	if title == "" {
		title = service.DefaultTitle
	}

	input := textinput.New()
	input.CharLimit = 500

	return Model{
		ctx:     ctx,
		session: opts.Session,
		surface: opts.Surface,
		title:   title,
		keys:    defaultKeyMap(),
		help:    help.New(),
		input:   input,
	}
}

// doneMsg reports the result of a command that ran on the loop.
type doneMsg struct {
	text string
	err  error
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.surface.wait(),
		m.run("", func(c *presenter.Controller) error {
			c.Refresh()
			return nil
		}),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-20, 10)
		m.ready = true
		return m, nil

	case frameMsg:
		m.frame = presenter.Frame(msg)
		if n := len(m.frame.Thumbs); m.selected >= n {
			m.selected = max(n-1, 0)
		}
		return m, m.surface.wait()

	case doneMsg:
		switch {
		case msg.err != nil:
			m.status, m.statusErr = msg.err.Error(), true
		case msg.text != "":
			m.status, m.statusErr = msg.text, false
		}
		return m, nil

	case tea.KeyMsg:
		if m.editing != fieldNone {
			return m.handleInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

// run executes fn on the event loop.
func (m Model) run(text string, fn func(*presenter.Controller) error) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		err := s.Do(ctx, func() error { return fn(s.Controller()) })
		return doneMsg{text: text, err: err}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	thumbs := m.frame.View == presenter.ViewThumbs

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	// Grid navigation is local; the grid has no cursor of its own.
	case thumbs && key.Matches(msg, m.keys.Next):
		if m.selected < len(m.frame.Thumbs)-1 {
			m.selected++
		}
		return m, nil
	case thumbs && key.Matches(msg, m.keys.Prev):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case thumbs && key.Matches(msg, m.keys.First):
		m.selected = 0
		return m, nil
	case thumbs && key.Matches(msg, m.keys.Last):
		m.selected = max(len(m.frame.Thumbs)-1, 0)
		return m, nil
	case thumbs && key.Matches(msg, m.keys.Select):
		uid := m.thumbUID()
		if uid == "" {
			return m, nil
		}
		return m, m.run("", func(c *presenter.Controller) error { return c.Release(uid, uid, 0, 0) })
	case thumbs && key.Matches(msg, m.keys.ShiftBack, m.keys.ShiftFwd):
		return m.shift(key.Matches(msg, m.keys.ShiftFwd))

	case key.Matches(msg, m.keys.Next):
		return m, m.run("", func(c *presenter.Controller) error { c.Next(); return nil })
	case key.Matches(msg, m.keys.Prev):
		return m, m.run("", func(c *presenter.Controller) error { c.Prev(); return nil })
	case key.Matches(msg, m.keys.First):
		return m, m.run("", func(c *presenter.Controller) error { c.First(); return nil })
	case key.Matches(msg, m.keys.Last):
		return m, m.run("", func(c *presenter.Controller) error { c.Last(); return nil })

	case key.Matches(msg, m.keys.View):
		next := presenter.ViewThumbs
		if thumbs {
			next = presenter.ViewSlides
		}
		return m, m.run("", func(c *presenter.Controller) error { c.SetView(next); return nil })

	case key.Matches(msg, m.keys.Autoplay):
		return m, m.run("", func(c *presenter.Controller) error { c.ToggleAutoplay(); return nil })
	case key.Matches(msg, m.keys.Interval):
		d := nextInterval(m.frame.Interval)
		return m, m.run(fmt.Sprintf("autoplay every %s", d), func(c *presenter.Controller) error {
			return c.SetInterval(d)
		})

	case key.Matches(msg, m.keys.Star):
		uid := m.targetUID()
		if uid == "" {
			return m, nil
		}
		return m, m.run("", func(c *presenter.Controller) error { return c.ToggleStar(uid) })

	case key.Matches(msg, m.keys.Title):
		return m.startEdit(fieldTitle)
	case key.Matches(msg, m.keys.Description):
		return m.startEdit(fieldDescription)
	case key.Matches(msg, m.keys.Comment):
		return m.startEdit(fieldComment)

	case key.Matches(msg, m.keys.Record):
		return m, m.run("", func(c *presenter.Controller) error { return c.ToggleRecord() })
	case key.Matches(msg, m.keys.Play):
		return m, m.run("", func(c *presenter.Controller) error { return c.Play() })

	case key.Matches(msg, m.keys.Rescan):
		return m, m.run("journal rescanned", func(c *presenter.Controller) error { return c.Rescan(m.ctx) })
	case key.Matches(msg, m.keys.Save):
		return m, m.save()
	case key.Matches(msg, m.keys.ExportPDF):
		return m, m.export(export.PDF)
	case key.Matches(msg, m.keys.ExportODP):
		return m, m.export(export.ODP)
	case key.Matches(msg, m.keys.ExportHTML):
		return m, m.export(export.HTML)
	}
	return m, nil
}

// shift moves the selected thumbnail to the start or the end, as a
// vertical drag would.
func (m Model) shift(toEnd bool) (tea.Model, tea.Cmd) {
	uid := m.thumbUID()
	if uid == "" {
		return m, nil
	}
	dy := -dragStep
	m.selected = 0
	if toEnd {
		dy = dragStep
		m.selected = len(m.frame.Thumbs) - 1
	}
	return m, m.run("", func(c *presenter.Controller) error { return c.Release(uid, uid, 0, dy) })
}

// dragStep is a vertical drag long enough not to count as a click.
const dragStep = 20

func (m Model) startEdit(f field) (tea.Model, tea.Cmd) {
	if m.frame.Slide == nil || m.frame.View != presenter.ViewSlides {
		return m, nil
	}
	m.editing = f
	m.editUID = m.frame.Slide.UID
	m.input.Prompt = f.prompt()
	switch f {
	case fieldTitle:
		m.input.SetValue(m.frame.Slide.Title)
	case fieldDescription:
		m.input.SetValue(m.frame.Slide.Description)
	default:
		m.input.SetValue("")
	}
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.editing = fieldNone
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		f, uid, value := m.editing, m.editUID, m.input.Value()
		m.editing = fieldNone
		m.input.Blur()
		return m, m.run("", func(c *presenter.Controller) error {
			switch f {
			case fieldTitle:
				return c.SetTitle(uid, value)
			case fieldDescription:
				return c.SetDescription(uid, value)
			default:
				return c.AddComment(uid, value)
			}
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) save() tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		var n int
		err := s.Do(ctx, func() error {
			var err error
			n, err = s.Service().SaveChanges(ctx)
			return err
		})
		return doneMsg{text: fmt.Sprintf("saved %d slides", n), err: err}
	}
}

func (m Model) export(f export.Format) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		var doc *model.Document
		err := s.Do(ctx, func() error {
			var err error
			doc, err = s.Service().Export(ctx, f)
			return err
		})
		if err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{text: fmt.Sprintf("exported %q to the journal", doc.Meta(model.MetaTitle))}
	}
}

func (m Model) thumbUID() string {
	if m.selected < 0 || m.selected >= len(m.frame.Thumbs) {
		return ""
	}
	return m.frame.Thumbs[m.selected].UID
}

// targetUID is the slide a star toggle applies to.
func (m Model) targetUID() string {
	if m.frame.View == presenter.ViewThumbs {
		return m.thumbUID()
	}
	if m.frame.Slide != nil {
		return m.frame.Slide.UID
	}
	return ""
}

func nextInterval(cur time.Duration) time.Duration {
	i := slices.Index(presenter.Intervals, cur)
	return presenter.Intervals[(i+1)%len(presenter.Intervals)]
}

// Run starts the program and blocks until the user quits.
func Run(opts Options) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(opts.Context))
	_, err := p.Run()
	return err
}
