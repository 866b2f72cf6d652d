package list_test

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matoboco/IJ-HttpClient/internal/spec"
	"github.com/matoboco/IJ-HttpClient/internal/tui/components/list"
	"github.com/matoboco/IJ-HttpClient/internal/tui/theme"
	"go.followtheprocess.codes/test"
)

func requests() []spec.Request {
	return []spec.Request{
		{Name: "Get users", Method: "GET", URL: "https://example.com/users"},
		{Name: "Create user", Method: "POST", URL: "https://example.com/users"},
	}
}

// update sends msgs to model in order, returning the final model and the last command.
func update(t *testing.T, model tea.Model, msgs ...tea.Msg) (list.Model, tea.Cmd) {
	t.Helper()

	var cmd tea.Cmd
	for _, msg := range msgs {
		model, cmd = model.Update(msg)
	}

	final, ok := model.(list.Model)
	test.True(t, ok, test.Context("model was %T", model))

	return final, cmd
}

func TestSelect(t *testing.T) {
	model := list.New("Requests", requests(), theme.CatppuccinMacchiato)

	final, cmd := update(t, model,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyEnter},
	)

	test.Equal(t, final.Selected(), "Create user")
	test.True(t, cmd != nil, test.Context("enter should quit"))
}

func TestQuit(t *testing.T) {
	model := list.New("Requests", requests(), theme.CatppuccinMacchiato)

	final, cmd := update(t, model,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")},
	)

	test.Equal(t, final.Selected(), "")
	test.True(t, cmd != nil, test.Context("q should quit"))
}

func TestEmpty(t *testing.T) {
	model := list.New("Requests", nil, theme.CatppuccinMacchiato)

	final, _ := update(t, model,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		tea.KeyMsg{Type: tea.KeyEnter},
	)

	test.Equal(t, final.Selected(), "")
}
