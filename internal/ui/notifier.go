package ui

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"github.com/rs/zerolog"

	"github.com/ytget/sharedl/internal/download"
	"github.com/ytget/sharedl/internal/model"
)

// Prompter shows download errors and overwrite questions as dialogs
type Prompter struct {
	window fyne.Window
	logger zerolog.Logger
}

var _ download.Notifier = (*Prompter)(nil)

// NewPrompter creates a notifier bound to window
func NewPrompter(window fyne.Window, logger zerolog.Logger) *Prompter {
	return &Prompter{window: window, logger: logger}
}

// Error shows err in an error dialog
func (p *Prompter) Error(task *model.Task, err error) {
	if task != nil {
		err = fmt.Errorf("%s: %w", task.Name, err)
	}
	p.logger.Debug().Err(err).Msg("showing error")
	fyne.Do(func() {
		dialog.ShowError(err, p.window)
	})
}

// ConfirmOverwrite asks the user and blocks until answered or ctx is done.
// It must not be called from the UI goroutine.
func (p *Prompter) ConfirmOverwrite(ctx context.Context, path string) (bool, error) {
	answer := make(chan bool, 1)
	fyne.Do(func() {
		dialog.ShowConfirm(
			"Overwrite",
			fmt.Sprintf("%s already exists.\nDelete it and download again?", path),
			func(ok bool) { answer <- ok },
			p.window,
		)
	})

	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
