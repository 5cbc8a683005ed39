package ui

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"

	"github.com/ytget/sharedl/internal/model"
)

// TaskRow renders one task with its progress and actions
type TaskRow struct {
	widget.BaseWidget

	task *model.Task

	nameLabel     *widget.Label
	statusLabel   *widget.Label
	detailLabel   *widget.Label
	percentLabel  *widget.Label
	progress      *widget.ProgressBar
	startPauseBtn *widget.Button
	removeBtn     *widget.Button
	revealBtn     *widget.Button

	onStartPause func(task *model.Task)
	onRemove     func(task *model.Task)
	onReveal     func(task *model.Task)
}

// NewTaskRow creates a new task row widget
func NewTaskRow() *TaskRow {
	tr := &TaskRow{task: &model.Task{}}
	tr.ExtendBaseWidget(tr)
	tr.createUI()
	return tr
}

// SetCallbacks sets the action callbacks
func (tr *TaskRow) SetCallbacks(onStartPause, onRemove, onReveal func(task *model.Task)) {
	tr.onStartPause = onStartPause
	tr.onRemove = onRemove
	tr.onReveal = onReveal
}

// UpdateTask updates the row with new task data
func (tr *TaskRow) UpdateTask(task *model.Task) {
	if task == nil {
		return
	}
	tr.task = task
	tr.updateFromTask()
	tr.Refresh()
}

func (tr *TaskRow) createUI() {
	tr.nameLabel = widget.NewLabel("")
	tr.nameLabel.TextStyle = fyne.TextStyle{Bold: true}
	tr.nameLabel.Truncation = fyne.TextTruncateEllipsis

	tr.statusLabel = widget.NewLabel("")
	tr.statusLabel.Alignment = fyne.TextAlignTrailing
	tr.percentLabel = widget.NewLabel("")
	tr.percentLabel.Alignment = fyne.TextAlignTrailing
	tr.detailLabel = widget.NewLabel("")
	tr.detailLabel.TextStyle = fyne.TextStyle{Monospace: true}
	tr.detailLabel.Truncation = fyne.TextTruncateEllipsis

	tr.progress = widget.NewProgressBar()
	tr.progress.TextFormatter = func() string { return "" }

	tr.startPauseBtn = widget.NewButtonWithIcon("", theme.MediaPauseIcon(), func() {
		if tr.onStartPause != nil {
			tr.onStartPause(tr.task)
		}
	})
	tr.removeBtn = widget.NewButtonWithIcon("", theme.DeleteIcon(), func() {
		if tr.onRemove != nil {
			tr.onRemove(tr.task)
		}
	})
	tr.removeBtn.Importance = widget.LowImportance
	tr.revealBtn = widget.NewButtonWithIcon("", theme.FolderOpenIcon(), func() {
		if tr.onReveal != nil {
			tr.onReveal(tr.task)
		}
	})
	tr.revealBtn.Importance = widget.LowImportance
}

func (tr *TaskRow) updateFromTask() {
	task := tr.task

	tr.nameLabel.SetText(task.Name)
	tr.statusLabel.SetText(statusText(task))
	tr.statusLabel.Importance = statusImportance(task)
	tr.detailLabel.SetText(detailText(task))

	progress := task.Progress()
	tr.progress.SetValue(progress)
	tr.percentLabel.SetText(fmt.Sprintf(ProgressLabelFormat, int(progress*100)))

	switch {
	case task.AllFinished():
		tr.startPauseBtn.Hide()
	case task.Status() == model.TaskStatusPending:
		tr.startPauseBtn.SetIcon(theme.MediaPauseIcon())
		tr.startPauseBtn.Show()
	default:
		tr.startPauseBtn.SetIcon(theme.MediaPlayIcon())
		tr.startPauseBtn.Show()
	}
}

// CreateRenderer implements fyne.Widget
func (tr *TaskRow) CreateRenderer() fyne.WidgetRenderer {
	status := container.NewGridWrap(fyne.NewSize(StatusLabelWidth, tr.statusLabel.MinSize().Height), tr.statusLabel)
	percent := container.NewGridWrap(fyne.NewSize(PercentLabelWidth, tr.percentLabel.MinSize().Height), tr.percentLabel)
	actions := container.NewHBox(tr.startPauseBtn, tr.revealBtn, tr.removeBtn)

	top := container.NewBorder(nil, nil, nil, container.NewHBox(status, actions), tr.nameLabel)
	bottom := container.NewBorder(nil, nil, nil, percent, tr.progress)
	return widget.NewSimpleRenderer(container.NewVBox(top, bottom, tr.detailLabel))
}

func statusText(task *model.Task) string {
	switch {
	case task.Resolving:
		return "resolving"
	case task.AllFinished():
		return "finished"
	case task.Status() == model.TaskStatusPending:
		return "downloading"
	case task.Error != "":
		return "error"
	case task.CountStatus(model.StatusFail) > 0:
		return "failed"
	case task.Held || task.CountStatus(model.StatusPause) > 0:
		return "paused"
	default:
		return "queued"
	}
}

func detailText(task *model.Task) string {
	parts := []string{}
	if task.HasSubtasks() {
		if total := task.Total(); total > 0 {
			parts = append(parts, humanize.IBytes(uint64(task.Resolved()))+" / "+humanize.IBytes(uint64(total)))
		} else {
			parts = append(parts, humanize.IBytes(uint64(task.Resolved())))
		}
		if len(task.Subtasks) > 1 {
			parts = append(parts, fmt.Sprintf("%d/%d files", task.CountStatus(model.StatusFinish), len(task.Subtasks)))
		}
	}
	if task.Merge {
		parts = append(parts, "merge")
	}
	switch {
	case task.Error != "":
		parts = append(parts, task.Error)
	case !task.FinishedAt.IsZero():
		parts = append(parts, humanize.Time(task.FinishedAt))
	default:
		parts = append(parts, firstSubtaskError(task))
	}

	text := strings.Join(nonEmpty(parts), MiddleDotSeparator)
	if text == "" {
		return DashPlaceholder
	}
	return text
}

func firstSubtaskError(task *model.Task) string {
	for _, sub := range task.Subtasks {
		if sub.Status == model.StatusFail && sub.Error != "" {
			return sub.Name + ": " + sub.Error
		}
	}
	return ""
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
