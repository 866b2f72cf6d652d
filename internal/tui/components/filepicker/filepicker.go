// Package filepicker implements a bubbletea component to pick a .http file.
package filepicker

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/matoboco/IJ-HttpClient/internal/tui/theme"
)

const errorClearAfter = 2 * time.Second

// AllowedTypes are the extensions of the files that can be picked.
var AllowedTypes = []string{".http", ".rest"}

// Model is the file picker tea Model.
type Model struct {
	fp       filepicker.Model // The base filepicker we build off and customise
	help     help.Model       // The tea model providing the keymap help
	err      error            // Any error encountered during picking
	palette  theme.Palette    // Colours
	selected string           // The path to the file that was selected
	keys     keyMap           // The key bindings
	quitting bool             // Whether the TUI is quitting
}

// New returns a new [Model] starting in dir.
func New(dir string, palette theme.Palette) Model {
	picker := filepicker.New()
	picker.AllowedTypes = AllowedTypes
	picker.CurrentDirectory = dir
	picker.KeyMap = filepicker.KeyMap{
		GoToTop:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "first")),
		GoToLast: key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "last")),
		Down:     key.NewBinding(key.WithKeys("j", "down", "ctrl+n"), key.WithHelp("↓/j", "down")),
		Up:       key.NewBinding(key.WithKeys("k", "up", "ctrl+p"), key.WithHelp("↑/k", "up")),
		PageUp:   key.NewBinding(key.WithKeys("K", "pgup"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("J", "pgdown"), key.WithHelp("pgdown", "page down")),
		Back:     key.NewBinding(key.WithKeys("h", "backspace", "left", "esc"), key.WithHelp("h", "back")),
		Open:     key.NewBinding(key.WithKeys("l", "right", "enter"), key.WithHelp("l/→/enter", "open")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	}
	picker.Styles.Selected = palette.Selected()
	picker.Styles.Cursor = picker.Styles.Cursor.Foreground(palette.Accent)

	return Model{
		fp:      picker,
		help:    help.New(),
		keys:    keyMap(picker.KeyMap),
		palette: palette,
	}
}

// Selected returns the file that was picked, empty if the user quit without picking.
func (m Model) Selected() string {
	return m.selected
}

// keyMap implements [help.KeyMap] for the filepicker key bindings.
type keyMap filepicker.KeyMap

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Back, k.Select}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Back, k.Select},
		{k.GoToTop, k.GoToLast, k.PageUp, k.PageDown, k.Open},
	}
}

// clearErrorMsg tells the model to clear the current error.
type clearErrorMsg struct{}

// clearError sends a clearErrorMsg after d.
func clearError(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearErrorMsg{}
	})
}

// Init helps implement [tea.Model] for [Model].
func (m Model) Init() tea.Cmd {
	return m.fp.Init()
}

// Update updates the UI in response to messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		// Leave room for the title and help lines
		m.fp.SetHeight(max(msg.Height-4, 1))
		m.help.Width = msg.Width
	case clearErrorMsg:
		m.err = nil
	}

	var cmd tea.Cmd
	m.fp, cmd = m.fp.Update(msg)

	if didSelect, path := m.fp.DidSelectDisabledFile(msg); didSelect {
		m.err = fmt.Errorf("%s is not a %s file", path, strings.Join(AllowedTypes, " or "))
		m.selected = ""
		return m, tea.Batch(cmd, clearError(errorClearAfter))
	}

	if didSelect, path := m.fp.DidSelectFile(msg); didSelect {
		m.selected = path
		m.quitting = true
		return m, tea.Quit
	}

	return m, cmd
}

// View renders the UI to the user.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := &strings.Builder{}
	s.WriteByte('\n')

	if m.err != nil {
		s.WriteString(m.palette.Err().Render(m.err.Error()))
	} else {
		s.WriteString(m.palette.Title().Render("Pick a .http file"))
	}

	s.WriteString("\n\n")
	s.WriteString(m.fp.View())
	s.WriteByte('\n')
	s.WriteString(m.help.View(m.keys))

	return s.String()
}
