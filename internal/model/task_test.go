package model

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNewTask(t *testing.T) {
	task := NewTask("doc.pdf", "https://share/abc", "/data", "", false)

	if !strings.HasPrefix(task.ID, "task-") || len(task.ID) != len("task-")+36 {
		t.Errorf("Unexpected task ID: %s", task.ID)
	}
	if task.HasSubtasks() {
		t.Error("New task must have no subtasks")
	}
	if !task.Schedulable() {
		t.Error("Unresolved task must be schedulable")
	}
	task.Error = "access denied"
	if task.Schedulable() {
		t.Error("Task with a resolution error must wait for an explicit start")
	}
	task.Error = ""
	task.Held = true
	if task.Schedulable() {
		t.Error("Task whose listing was paused must wait for an explicit start")
	}
	if task.Status() != TaskStatusReady {
		t.Errorf("Expected ready, got %s", task.Status())
	}
	if task.TempDir() != filepath.Join("/data", "doc.pdf.downloading") {
		t.Errorf("Unexpected temp dir %s", task.TempDir())
	}
	if task.FinalPath() != filepath.Join("/data", "doc.pdf") {
		t.Errorf("Unexpected final path %s", task.FinalPath())
	}
}

func TestTask_Totals(t *testing.T) {
	task := &Task{Subtasks: []*Subtask{
		{Size: 100, Resolved: 100, Status: StatusFinish},
		{Size: 50, Resolved: 10, Status: StatusPending},
		{Size: 0, Resolved: 0, Status: StatusReady},
	}}

	if task.Total() != 150 {
		t.Errorf("Total() = %d, expected 150", task.Total())
	}
	if task.Resolved() != 110 {
		t.Errorf("Resolved() = %d, expected 110", task.Resolved())
	}
	if p := task.Progress(); p < 0.73 || p > 0.74 {
		t.Errorf("Progress() = %f", p)
	}
	if task.Status() != TaskStatusPending {
		t.Errorf("Expected pending, got %s", task.Status())
	}
	if task.NextReady() != task.Subtasks[2] {
		t.Error("NextReady must return the first ready subtask")
	}
}

func TestTask_Status(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []SubtaskStatus
		resolving bool
		expected  TaskStatus
		finished  bool
		schedule  bool
	}{
		{"unresolved", nil, false, TaskStatusReady, false, true},
		{"resolving", nil, true, TaskStatusPending, false, false},
		{"all finished", []SubtaskStatus{StatusFinish, StatusFinish}, false, TaskStatusReady, true, false},
		{"failed only", []SubtaskStatus{StatusFinish, StatusFail}, false, TaskStatusReady, false, false},
		{"failed and ready", []SubtaskStatus{StatusFail, StatusReady}, false, TaskStatusReady, false, true},
		{"paused and ready", []SubtaskStatus{StatusPause, StatusReady}, false, TaskStatusReady, false, true},
		{"paused only", []SubtaskStatus{StatusFinish, StatusPause}, false, TaskStatusReady, false, false},
		{"one pending", []SubtaskStatus{StatusPending, StatusReady}, false, TaskStatusPending, false, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			task := &Task{Resolving: test.resolving}
			for _, s := range test.statuses {
				task.Subtasks = append(task.Subtasks, &Subtask{Status: s})
			}
			if got := task.Status(); got != test.expected {
				t.Errorf("Status() = %s, expected %s", got, test.expected)
			}
			if got := task.AllFinished(); got != test.finished {
				t.Errorf("AllFinished() = %v, expected %v", got, test.finished)
			}
			if got := task.Schedulable(); got != test.schedule {
				t.Errorf("Schedulable() = %v, expected %v", got, test.schedule)
			}
		})
	}
}

func TestTask_Clone(t *testing.T) {
	task := &Task{URL: "u", Subtasks: []*Subtask{{URL: "a", Status: StatusReady}}}
	c := task.Clone()
	c.Subtasks[0].Status = StatusPending

	if task.Subtasks[0].Status != StatusReady {
		t.Error("Clone must not share subtasks")
	}
	if task.Subtask("a") == nil || task.Subtask("b") != nil {
		t.Error("Subtask lookup by url failed")
	}
}
