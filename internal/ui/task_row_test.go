package ui

import (
	"strings"
	"testing"

	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/sharedl/internal/model"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", false},
		{"https://share.example/s/abc", false},
		{"http://share.example/s/abc", false},
		{"ftp://share.example/s/abc", true},
		{"share.example/s/abc", true},
	}
	for _, tt := range tests {
		if err := validateURL(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("validateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		name     string
		task     *model.Task
		expected string
	}{
		{"queued", &model.Task{}, "queued"},
		{"resolving", &model.Task{Resolving: true}, "resolving"},
		{"resolve error", &model.Task{Error: "denied"}, "error"},
		{"downloading", &model.Task{Subtasks: []*model.Subtask{{Status: model.StatusPending}}}, "downloading"},
		{"listing paused", &model.Task{Held: true}, "paused"},
		{"paused", &model.Task{Subtasks: []*model.Subtask{{Status: model.StatusPause}}}, "paused"},
		{"failed", &model.Task{Subtasks: []*model.Subtask{{Status: model.StatusFail}}}, "failed"},
		{"finished", &model.Task{Subtasks: []*model.Subtask{{Status: model.StatusFinish}}}, "finished"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusText(tt.task); got != tt.expected {
				t.Errorf("statusText() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestDetailText(t *testing.T) {
	task := &model.Task{Merge: true, Subtasks: []*model.Subtask{
		{Name: "p1", Size: 2048, Resolved: 2048, Status: model.StatusFinish},
		{Name: "p2", Size: 2048, Status: model.StatusFail, Error: "timeout"},
	}}

	got := detailText(task)
	for _, want := range []string{"2.0 KiB / 4.0 KiB", "1/2 files", "merge", "p2: timeout"} {
		if !strings.Contains(got, want) {
			t.Errorf("detailText() = %q, missing %q", got, want)
		}
	}

	if got := detailText(&model.Task{}); got != DashPlaceholder {
		t.Errorf("Empty task should render a placeholder, got %q", got)
	}
}

func TestTaskRow_Update(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	row := NewTaskRow()
	task := &model.Task{Name: "doc.pdf", Subtasks: []*model.Subtask{
		{Size: 100, Resolved: 50, Status: model.StatusPending},
	}}

	var started *model.Task
	row.SetCallbacks(func(t *model.Task) { started = t }, nil, nil)
	row.UpdateTask(task)
	test.WidgetRenderer(row)

	if row.nameLabel.Text != "doc.pdf" {
		t.Errorf("Unexpected name %q", row.nameLabel.Text)
	}
	if row.percentLabel.Text != "50%" {
		t.Errorf("Unexpected percent %q", row.percentLabel.Text)
	}
	if row.statusLabel.Importance != widget.MediumImportance {
		t.Errorf("Unexpected importance %v", row.statusLabel.Importance)
	}

	test.Tap(row.startPauseBtn)
	if started != task {
		t.Error("Start/pause callback should receive the row task")
	}

	task.Subtasks[0].Status = model.StatusFinish
	row.UpdateTask(task)
	if row.startPauseBtn.Visible() {
		t.Error("Finished tasks should hide the start/pause button")
	}
	if row.statusLabel.Importance != widget.SuccessImportance {
		t.Errorf("Unexpected importance %v", row.statusLabel.Importance)
	}
}
