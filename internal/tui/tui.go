// Package tui implements the terminal user interface for picking a .http file and a request
// in it to send, this is what happens when users call `ijhttp` with no arguments.
package tui

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matoboco/IJ-HttpClient/internal/ijhttp"
	"github.com/matoboco/IJ-HttpClient/internal/tui/components/filepicker"
	"github.com/matoboco/IJ-HttpClient/internal/tui/components/list"
	"github.com/matoboco/IJ-HttpClient/internal/tui/theme"
)

// Run runs the TUI starting in dir, the picked request is sent with options, or
// served if it is a MOCK_SERVER request.
//
// Quitting either picker without choosing anything is not an error.
func Run(ctx context.Context, app ijhttp.IJHTTP, dir string, options ijhttp.DoOptions) error {
	palette := theme.CatppuccinMacchiato

	model, err := tea.NewProgram(filepicker.New(dir, palette), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}

	picker, ok := model.(filepicker.Model)
	if !ok {
		return fmt.Errorf("tui error, final model was not as expected: %T", model)
	}

	file := picker.Selected()
	if file == "" {
		return nil
	}

	requests, err := app.Requests(file, options.ResolveOptions)
	if err != nil {
		return err
	}

	if len(requests) == 0 {
		return fmt.Errorf("%s contains no requests", file)
	}

	model, err = tea.NewProgram(
		list.New("Requests in "+filepath.Base(file), requests, palette),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	).Run()
	if err != nil {
		return err
	}

	picked, ok := model.(list.Model)
	if !ok {
		return fmt.Errorf("tui error, list final model was not as expected: %T", model)
	}

	name := picked.Selected()
	if name == "" {
		return nil
	}

	for _, request := range requests {
		if request.Name == name && request.IsMock() {
			return app.Mock(ctx, file, name, ijhttp.MockOptions{ResolveOptions: options.ResolveOptions})
		}
	}

	return app.Do(ctx, file, name, options)
}
