package download

import (
	"context"
	"errors"

	"github.com/ytget/sharedl/internal/model"
)

var (
	// ErrDuplicateTask is returned when the share URL is already in the active list
	ErrDuplicateTask = errors.New("task already exists")

	// ErrAdmissionCancelled is returned when the user declines to overwrite the destination
	ErrAdmissionCancelled = errors.New("admission cancelled")

	// ErrTaskNotFound is returned for operations on an unknown URL
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTask is returned for requests without a URL or a name
	ErrInvalidTask = errors.New("invalid task")

	// ErrClosed is returned once the manager was closed
	ErrClosed = errors.New("manager closed")
)

// TaskRequest describes a new download
type TaskRequest struct {
	Name  string
	URL   string
	Pwd   string
	Merge bool
}

// Downloader defines the interface for the download manager.
type Downloader interface {
	SetUpdateCallback(func(*model.Task))
	AddTask(ctx context.Context, req TaskRequest) (*model.Task, error)
	GetTask(url string) (*model.Task, bool)
	Tasks() []*model.Task
	FinishedTasks() []*model.Task
	Start(ctx context.Context, url string, reset bool) error
	StartAll(ctx context.Context) error
	Pause(url string) error
	PauseAll() error
	Remove(url string) error
	RemoveAll() error
	RemoveAllFinish() error

	// Dir returns the destination root for new tasks
	Dir() string

	// SetDir changes the destination root for new tasks
	SetDir(dir string) error
}

// Notifier receives user-visible failures and overwrite confirmations
type Notifier interface {
	// Error reports a failure; task may be nil for failures outside a task
	Error(task *model.Task, err error)

	// ConfirmOverwrite asks whether path may be deleted to make room for a new task
	ConfirmOverwrite(ctx context.Context, path string) (bool, error)
}

// Hooks are invoked with copies of the affected task
type Hooks struct {
	OnUpdate          func(*model.Task)
	OnSubtaskFinished func(*model.Task, *model.Subtask)
	OnTaskFinished    func(*model.Task)
}

type nopNotifier struct{}

func (nopNotifier) Error(*model.Task, error) {}

// ConfirmOverwrite declines: without a user to ask, nothing is deleted.
func (nopNotifier) ConfirmOverwrite(context.Context, string) (bool, error) {
	return false, nil
}
