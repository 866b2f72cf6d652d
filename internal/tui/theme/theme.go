// Package theme provides the lipgloss colour palette and styles used by the ijhttp TUI.
package theme

import "github.com/charmbracelet/lipgloss"

// Palette is a colour palette for the TUI.
type Palette struct {
	Accent  lipgloss.Color // Titles and the selected item
	Subtle  lipgloss.Color // Descriptions of the selected item
	Error   lipgloss.Color // Error messages
	Success lipgloss.Color // The picked file
	Text    lipgloss.Color // Text on an accent background
}

// CatppuccinMacchiato is the default palette, taken from the Catppuccin Macchiato flavour.
// See https://catppuccin.com/palette/.
var CatppuccinMacchiato = Palette{
	Accent:  lipgloss.Color("#c6a0f6"), // Mauve
	Subtle:  lipgloss.Color("#b7bdf8"), // Lavender
	Error:   lipgloss.Color("#ed8796"), // Red
	Success: lipgloss.Color("#a6da95"), // Green
	Text:    lipgloss.Color("#24273a"), // Base
}

// Title returns the style for a title bar.
func (p Palette) Title() lipgloss.Style {
	return lipgloss.NewStyle().
		Background(p.Accent).
		Foreground(p.Text).
		Bold(true).
		Padding(0, 1)
}

// Err returns the style for error messages.
func (p Palette) Err() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(p.Error)
}

// Selected returns the style for a picked item.
func (p Palette) Selected() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(p.Success).Bold(true)
}
