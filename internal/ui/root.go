package ui

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/ytget/sharedl/internal/config"
	"github.com/ytget/sharedl/internal/download"
	"github.com/ytget/sharedl/internal/model"
	"github.com/ytget/sharedl/internal/platform"
)

// admissionTimeout bounds how long an overwrite question may stay open
const admissionTimeout = 5 * time.Minute

// RootUI represents the main UI structure
type RootUI struct {
	window   fyne.Window
	manager  download.Downloader
	settings *config.Settings
	logger   zerolog.Logger

	urlEntry   *widget.Entry
	nameEntry  *widget.Entry
	pwdEntry   *widget.Entry
	mergeCheck *widget.Check
	addBtn     *widget.Button

	taskList     *widget.List
	finishedList *widget.List

	mu        sync.Mutex
	tasks     []*model.Task
	finished  []*model.Task
	announced map[string]bool
	pending   bool
}

// NewRootUI creates and initializes the main UI
func NewRootUI(window fyne.Window, manager download.Downloader, settings *config.Settings, logger zerolog.Logger) *RootUI {
	ui := &RootUI{
		window:    window,
		manager:   manager,
		settings:  settings,
		logger:    logger,
		announced: make(map[string]bool),
	}
	for _, task := range manager.FinishedTasks() {
		ui.announced[task.ID] = true
	}

	manager.SetUpdateCallback(ui.onTaskUpdate)

	ui.setupUI()
	ui.reload()
	return ui
}

// setupUI creates and arranges all UI components
func (ui *RootUI) setupUI() {
	ui.urlEntry = widget.NewEntry()
	ui.urlEntry.SetPlaceHolder("Share link")
	ui.urlEntry.Validator = validateURL
	ui.urlEntry.OnChanged = func(s string) {
		if ui.nameEntry.Text == "" {
			ui.nameEntry.SetPlaceHolder(suggestName(s))
		}
	}
	ui.urlEntry.OnSubmitted = func(string) { ui.onAddClick() }

	ui.nameEntry = widget.NewEntry()
	ui.nameEntry.SetPlaceHolder("File or folder name")
	ui.pwdEntry = widget.NewPasswordEntry()
	ui.pwdEntry.SetPlaceHolder("Password")
	ui.mergeCheck = widget.NewCheck("Merge parts", nil)

	ui.addBtn = widget.NewButton("Download", ui.onAddClick)
	ui.addBtn.Importance = widget.HighImportance

	settingsBtn := widget.NewButton(IconSettings, ui.onShowSettings)
	settingsBtn.Importance = widget.LowImportance

	urlRow := container.NewBorder(nil, nil, settingsBtn, ui.addBtn, ui.urlEntry)
	optionsRow := container.NewGridWithColumns(3, ui.nameEntry, ui.pwdEntry, ui.mergeCheck)

	toolbar := container.NewHBox(
		widget.NewButton("Start all", ui.onStartAll),
		widget.NewButton("Pause all", func() { ui.run("pause all", ui.manager.PauseAll) }),
		widget.NewButton("Remove all", ui.onRemoveAll),
	)

	ui.taskList = widget.NewList(
		func() int {
			ui.mu.Lock()
			defer ui.mu.Unlock()
			return len(ui.tasks)
		},
		func() fyne.CanvasObject { return NewTaskRow() },
		func(id widget.ListItemID, obj fyne.CanvasObject) { ui.updateRow(false, id, obj) },
	)

	ui.finishedList = widget.NewList(
		func() int {
			ui.mu.Lock()
			defer ui.mu.Unlock()
			return len(ui.finished)
		},
		func() fyne.CanvasObject { return NewTaskRow() },
		func(id widget.ListItemID, obj fyne.CanvasObject) { ui.updateRow(true, id, obj) },
	)
	clearBtn := widget.NewButton("Clear finished", func() { ui.run("clear finished", ui.manager.RemoveAllFinish) })

	tabs := container.NewAppTabs(
		container.NewTabItem("Active", container.NewBorder(toolbar, nil, nil, nil, ui.taskList)),
		container.NewTabItem("Finished", container.NewBorder(container.NewHBox(clearBtn), nil, nil, nil, ui.finishedList)),
	)

	top := container.NewVBox(urlRow, optionsRow)
	ui.window.SetContent(container.NewBorder(top, nil, nil, nil, tabs))
}

func (ui *RootUI) updateRow(finished bool, id widget.ListItemID, obj fyne.CanvasObject) {
	ui.mu.Lock()
	list := ui.tasks
	if finished {
		list = ui.finished
	}
	var task *model.Task
	if id < len(list) {
		task = list[id]
	}
	ui.mu.Unlock()

	row, ok := obj.(*TaskRow)
	if !ok || task == nil {
		return
	}
	row.SetCallbacks(ui.onStartPause, ui.onRemove, ui.onReveal)
	row.UpdateTask(task)
}

// validateURL validates the entered URL
func validateURL(input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parsedURL, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	return nil
}

// suggestName derives a default task name from the last path segment of the link
func suggestName(raw string) string {
	return platform.DeriveFileName(strings.TrimSpace(raw), 0)
}

// onAddClick handles the download button click
func (ui *RootUI) onAddClick() {
	rawURL := strings.TrimSpace(ui.urlEntry.Text)
	if rawURL == "" {
		dialog.ShowInformation("Download", "Please enter a share link", ui.window)
		return
	}
	if err := validateURL(rawURL); err != nil {
		dialog.ShowError(fmt.Errorf("invalid URL: %w", err), ui.window)
		return
	}

	name := strings.TrimSpace(ui.nameEntry.Text)
	if name == "" {
		name = suggestName(rawURL)
	}
	req := download.TaskRequest{
		Name:  name,
		URL:   rawURL,
		Pwd:   ui.pwdEntry.Text,
		Merge: ui.mergeCheck.Checked,
	}

	// AddTask may wait for an overwrite dialog, so it must leave the UI goroutine
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), admissionTimeout)
		defer cancel()

		_, err := ui.manager.AddTask(ctx, req)
		fyne.Do(func() {
			switch {
			case errors.Is(err, download.ErrDuplicateTask):
				dialog.ShowInformation("Download", "This link is already in the queue", ui.window)
			case errors.Is(err, download.ErrAdmissionCancelled):
				ui.logger.Info().Str("url", req.URL).Msg("admission cancelled")
			case err != nil:
				dialog.ShowError(err, ui.window)
			default:
				ui.urlEntry.SetText("")
				ui.nameEntry.SetText("")
				ui.pwdEntry.SetText("")
				ui.mergeCheck.SetChecked(false)
			}
		})
	}()
}

// onStartPause pauses a downloading task and resumes anything else
func (ui *RootUI) onStartPause(task *model.Task) {
	if task.Status() == model.TaskStatusPending {
		ui.run("pause", func() error { return ui.manager.Pause(task.URL) })
		return
	}
	ui.run("start", func() error { return ui.manager.Start(context.Background(), task.URL, true) })
}

func (ui *RootUI) onRemove(task *model.Task) {
	ui.run("remove", func() error { return ui.manager.Remove(task.URL) })
}

func (ui *RootUI) onReveal(task *model.Task) {
	target := task.Dir
	if task.AllFinished() {
		target = task.FinalPath()
	}
	if err := platform.OpenInFileManager(target); err != nil {
		ui.logger.Error().Err(err).Str("path", target).Msg("failed to reveal")
		dialog.ShowError(err, ui.window)
	}
}

func (ui *RootUI) onStartAll() {
	ui.run("start all", func() error { return ui.manager.StartAll(context.Background()) })
}

func (ui *RootUI) onRemoveAll() {
	dialog.ShowConfirm("Remove all", "Stop and remove every active task?", func(ok bool) {
		if ok {
			ui.run("remove all", ui.manager.RemoveAll)
		}
	}, ui.window)
}

// run executes a manager operation off the UI goroutine and shows its error
func (ui *RootUI) run(op string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			ui.logger.Error().Err(err).Str("op", op).Msg("operation failed")
			fyne.Do(func() { dialog.ShowError(err, ui.window) })
		}
		ui.scheduleReload()
	}()
}

// onShowSettings shows the settings dialog
func (ui *RootUI) onShowSettings() {
	ShowSettingsDialog(ui.window, ui.settings, func() {
		if err := ui.manager.SetDir(ui.settings.GetDownloadDirectory()); err != nil {
			dialog.ShowError(err, ui.window)
		}
	})
}

// onTaskUpdate handles task updates from the download manager
func (ui *RootUI) onTaskUpdate(task *model.Task) {
	if task.AllFinished() {
		ui.mu.Lock()
		first := !ui.announced[task.ID]
		ui.announced[task.ID] = true
		ui.mu.Unlock()
		if first {
			ui.onTaskFinished(task)
		}
	}
	ui.scheduleReload()
}

func (ui *RootUI) onTaskFinished(task *model.Task) {
	fyne.CurrentApp().SendNotification(&fyne.Notification{
		Title:   "Download finished",
		Content: task.Name,
	})
	if ui.settings.GetAutoRevealOnComplete() {
		if err := platform.OpenInFileManager(task.Dir); err != nil {
			ui.logger.Warn().Err(err).Str("dir", task.Dir).Msg("auto-reveal failed")
		}
	}
}

// scheduleReload coalesces bursts of updates into one refresh per UIUpdateDebounce
func (ui *RootUI) scheduleReload() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.pending {
		return
	}
	ui.pending = true
	time.AfterFunc(UIUpdateDebounce, func() {
		ui.mu.Lock()
		ui.pending = false
		ui.mu.Unlock()
		ui.reload()
	})
}

// reload copies the manager lists and refreshes both views
func (ui *RootUI) reload() {
	tasks := ui.manager.Tasks()
	finished := ui.manager.FinishedTasks()

	ui.mu.Lock()
	ui.tasks = tasks
	ui.finished = finished
	ui.mu.Unlock()

	fyne.Do(func() {
		ui.taskList.Refresh()
		ui.finishedList.Refresh()
	})
}
