// Package list implements a bubbletea list component to pick a request from a .http file.
package list

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/matoboco/IJ-HttpClient/internal/spec"
	"github.com/matoboco/IJ-HttpClient/internal/tui/theme"
)

// Model is the list tea Model.
type Model struct {
	l         list.Model // The base list bubble
	selected  string     // The name of the selected request
	cancelled bool       // Whether the user quit without picking
}

// New returns a new [Model] listing requests, styled with palette.
func New(title string, requests []spec.Request, palette theme.Palette) Model {
	items := make([]list.Item, 0, len(requests))
	for _, request := range requests {
		items = append(items, request)
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(palette.Accent).
		BorderLeftForeground(palette.Accent)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(palette.Subtle).
		BorderLeftForeground(palette.Accent)

	l := list.New(items, delegate, 0, 0)
	l.Title = title
	l.Styles.Title = palette.Title()

	return Model{
		l: l,
	}
}

// Init helps implement [tea.Model] for [Model].
func (m Model) Init() tea.Cmd {
	return nil
}

// Update updates the UI in response to messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Keys typed into the filter belong to the filter
		if m.l.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if item := m.l.SelectedItem(); item != nil {
				m.selected = item.FilterValue()
			}

			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.l.SetSize(msg.Width, msg.Height)
	}

	var cmd tea.Cmd

	m.l, cmd = m.l.Update(msg)

	return m, cmd
}

// View renders the UI to the user.
func (m Model) View() string {
	return m.l.View()
}

// Selected returns the name of the picked request, empty if nothing was picked.
func (m Model) Selected() string {
	if m.cancelled {
		return ""
	}
	return m.selected
}
