package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings of the viewer.
type keyMap struct {
	// Global
	Quit key.Binding
	Help key.Binding

	// Navigation
	Next  key.Binding
	Prev  key.Binding
	First key.Binding
	Last  key.Binding
	View  key.Binding

	// Grid
	Select    key.Binding
	ShiftBack key.Binding
	ShiftFwd  key.Binding

	// Slideshow
	Autoplay key.Binding
	Interval key.Binding

	// Editing
	Title       key.Binding
	Description key.Binding
	Comment     key.Binding
	Star        key.Binding

	// Audio
	Record key.Binding
	Play   key.Binding

	// Journal
	Rescan     key.Binding
	Save       key.Binding
	ExportPDF  key.Binding
	ExportODP  key.Binding
	ExportHTML key.Binding

	// Input
	Confirm key.Binding
	Cancel  key.Binding
}

// defaultKeyMap returns the default key bindings.
func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),

		Next: key.NewBinding(
			key.WithKeys("right", "l", " "),
			key.WithHelp("→/l", "next"),
		),
		Prev: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "previous"),
		),
		First: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "first"),
		),
		Last: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "last"),
		),
		View: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "slides/thumbnails"),
		),

		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open thumbnail"),
		),
		ShiftBack: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "move to start"),
		),
		ShiftFwd: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "move to end"),
		),

		Autoplay: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "autoplay"),
		),
		Interval: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "cycle interval"),
		),

		Title: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit title"),
		),
		Description: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "edit description"),
		),
		Comment: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "comment"),
		),
		Star: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "star"),
		),

		Record: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "record note"),
		),
		Play: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "play note"),
		),

		Rescan: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "rescan journal"),
		),
		Save: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "save"),
		),
		ExportPDF: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "export PDF"),
		),
		ExportODP: key.NewBinding(
			key.WithKeys("O"),
			key.WithHelp("O", "export ODP"),
		),
		ExportHTML: key.NewBinding(
			key.WithKeys("W"),
			key.WithHelp("W", "export HTML"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.View, k.Autoplay, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.First, k.Last, k.View},
		{k.Select, k.ShiftBack, k.ShiftFwd, k.Star},
		{k.Autoplay, k.Interval, k.Record, k.Play},
		{k.Title, k.Description, k.Comment},
		{k.Rescan, k.Save, k.ExportPDF, k.ExportODP, k.ExportHTML},
		{k.Help, k.Quit},
	}
}
