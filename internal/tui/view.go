package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/presenter"
	"github.com/sakif/portfolio/internal/session"
)

// styles are derived from the session colors: the stroke color draws
// borders and names, the fill color highlights.
type styles struct {
	Header   lipgloss.Style
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Danger   lipgloss.Style
	Card     lipgloss.Style
	Thumb    lipgloss.Style
	Selected lipgloss.Style
}

func newStyles(c model.Colors) styles {
	stroke := lipgloss.Color(c.Stroke())
	fill := lipgloss.Color(c.Fill())
	return styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(stroke).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(stroke),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")),
		Accent: lipgloss.NewStyle().
			Foreground(fill),
		Danger: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(stroke).
			Padding(1, 2),
		Thumb: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1),
		Selected: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(fill).
			Padding(0, 1),
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	st := newStyles(m.frame.Colors)

	header := m.renderHeader(st)
	footer := m.renderFooter(st)
	bodyHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(footer), 3)

	var body string
	switch {
	case m.frame.Placeholder != "":
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center,
			st.Muted.Render(m.frame.Placeholder))
	case m.frame.View == presenter.ViewThumbs:
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Top, m.renderGrid(st))
	case m.frame.Slide != nil:
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Top, m.renderSlide(st, m.frame.Slide))
	default:
		body = lipgloss.NewStyle().Height(bodyHeight).Render("")
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderHeader(st styles) string {
	left := st.Header.Render(m.title)

	var parts []string
	switch m.frame.Role {
	case session.Host:
		parts = append(parts, "sharing")
	case session.Guest:
		parts = append(parts, "joined")
	}
	if m.frame.Nick != "" {
		parts = append(parts, m.frame.Nick)
	}
	if len(m.frame.Roster) > 0 {
		parts = append(parts, "with "+strings.Join(m.frame.Roster, ", "))
	}
	if m.frame.Playing {
		parts = append(parts, fmt.Sprintf("▶ %ds", m.frame.Seconds))
	}
	if m.frame.Count > 0 && m.frame.View == presenter.ViewSlides {
		parts = append(parts, fmt.Sprintf("%d/%d", m.frame.Position, m.frame.Count))
	}
	right := st.Muted.Render(strings.Join(parts, " · "))
	if m.frame.Recording {
		right = st.Danger.Render("● REC ") + right
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderSlide(st styles, s *presenter.SlideFrame) string {
	var b strings.Builder

	star := "☆"
	if s.Fav {
		star = st.Accent.Render("★")
	}
	b.WriteString(st.Title.Render(s.Title))
	b.WriteString(" ")
	b.WriteString(star)
	b.WriteString("\n")
	if s.Owner != "" {
		b.WriteString(st.Muted.Render("by " + s.Owner))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if s.Description == "" {
		b.WriteString(st.Muted.Italic(true).Render(s.Shown))
	} else {
		b.WriteString(s.Shown)
	}
	b.WriteString("\n")

	if s.HasSound {
		b.WriteString("\n")
		b.WriteString(st.Accent.Render("♪ audio note"))
		b.WriteString("\n")
	}

	if len(s.Comments) > 0 {
		b.WriteString("\n")
		for _, c := range s.Comments {
			b.WriteString(commentStyle(c).Render(c.From + ":"))
			b.WriteString(" ")
			b.WriteString(c.Message)
			b.WriteString("\n")
		}
	}

	width := min(max(m.width-4, 20), 100)
	return st.Card.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

// commentStyle colors a comment's author with the author's stroke color.
func commentStyle(c model.Comment) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	if colors, err := model.ParseColors(c.IconColor); err == nil {
		style = style.Foreground(lipgloss.Color(colors.Stroke()))
	}
	return style
}

// renderGrid lays the thumbnails out in a square grid, like the presenter
// does on its drawing area.
func (m Model) renderGrid(st styles) string {
	n := len(m.frame.Thumbs)
	if n == 0 {
		return ""
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	cellWidth := max(m.width/cols-4, 8)

	var rows []string
	for start := 0; start < n; start += cols {
		var cells []string
		for i := start; i < min(start+cols, n); i++ {
			t := m.frame.Thumbs[i]
			star := "☆"
			if t.Fav {
				star = "★"
			}
			label := truncate(t.Title, cellWidth-2) + "\n" + star
			style := st.Thumb
			if i == m.selected {
				style = st.Selected
			}
			cells = append(cells, style.Width(cellWidth).Render(label))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderFooter(st styles) string {
	var lines []string
	if m.editing != fieldNone {
		lines = append(lines, m.input.View())
	}
	if m.status != "" {
		if m.statusErr {
			lines = append(lines, st.Danger.Render(m.status))
		} else {
			lines = append(lines, st.Muted.Render(m.status))
		}
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if n <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
