package model

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// TempSuffix marks a task working directory that is not finalized yet.
const TempSuffix = ".downloading"

// Subtask represents one transferable file within a task
type Subtask struct {
	URL      string        `json:"url"`
	Pwd      string        `json:"pwd,omitempty"`
	Dir      string        `json:"dir"`  // temporary working directory
	Name     string        `json:"name"` // file name within Dir
	Size     int64         `json:"size"`
	Resolved int64         `json:"resolved"`
	Status   SubtaskStatus `json:"status"`
	Error    string        `json:"error,omitempty"` // last error message if any
}

// Path returns the location the subtask is written to.
func (s *Subtask) Path() string {
	return filepath.Join(s.Dir, s.Name)
}

// SetStatus moves the subtask along an allowed edge.
func (s *Subtask) SetStatus(to SubtaskStatus) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	return nil
}

// Task represents a download request for one share reference
type Task struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	URLType    URLType    `json:"urlType,omitempty"`
	Name       string     `json:"name"`
	Dir        string     `json:"dir"`
	Pwd        string     `json:"pwd,omitempty"`
	Merge      bool       `json:"merge"`
	Subtasks   []*Subtask `json:"subtasks"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt time.Time  `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"` // last resolution error

	// Held is set when the listing was cancelled by a pause; it waits for an explicit start.
	Held bool `json:"held,omitempty"`

	// Resolving is set while the listing call is in flight.
	Resolving bool `json:"-"`
}

// NewTask creates a task with unresolved subtasks
func NewTask(name, url, dir, pwd string, merge bool) *Task {
	return &Task{
		ID:        generateTaskID(),
		URL:       url,
		Name:      name,
		Dir:       dir,
		Pwd:       pwd,
		Merge:     merge,
		Subtasks:  make([]*Subtask, 0),
		CreatedAt: time.Now(),
	}
}

// TempDir returns the shared working directory of the task
func (t *Task) TempDir() string {
	return filepath.Join(t.Dir, t.Name+TempSuffix)
}

// FinalPath returns where the finished file or folder ends up
func (t *Task) FinalPath() string {
	return filepath.Join(t.Dir, t.Name)
}

// Total is the sum of subtask sizes
func (t *Task) Total() int64 {
	var total int64
	for _, s := range t.Subtasks {
		total += s.Size
	}
	return total
}

// Resolved is the sum of bytes transferred across subtasks
func (t *Task) Resolved() int64 {
	var resolved int64
	for _, s := range t.Subtasks {
		resolved += s.Resolved
	}
	return resolved
}

// Progress returns 0.0 to 1.0, or 0 when the total is unknown
func (t *Task) Progress() float64 {
	total := t.Total()
	if total <= 0 {
		return 0
	}
	return float64(t.Resolved()) / float64(total)
}

// Status is pending when any subtask is pending or the listing is in flight.
func (t *Task) Status() TaskStatus {
	if t.Resolving {
		return TaskStatusPending
	}
	for _, s := range t.Subtasks {
		if s.Status == StatusPending {
			return TaskStatusPending
		}
	}
	return TaskStatusReady
}

// HasSubtasks reports whether the address resolver already ran
func (t *Task) HasSubtasks() bool {
	return len(t.Subtasks) > 0
}

// Schedulable reports whether the scheduler may pick the task on its own.
// A failed or paused resolution holds the task until it is started explicitly.
// Paused and failed subtasks stay put while their ready siblings run.
func (t *Task) Schedulable() bool {
	if t.Resolving {
		return false
	}
	if !t.HasSubtasks() {
		return t.Error == "" && !t.Held
	}
	return t.NextReady() != nil
}

// NextReady returns the first ready subtask in list order
func (t *Task) NextReady() *Subtask {
	for _, s := range t.Subtasks {
		if s.Status == StatusReady {
			return s
		}
	}
	return nil
}

// Subtask returns the subtask with the given url
func (t *Task) Subtask(url string) *Subtask {
	for _, s := range t.Subtasks {
		if s.URL == url {
			return s
		}
	}
	return nil
}

// AllFinished reports whether every subtask reached finish
func (t *Task) AllFinished() bool {
	if !t.HasSubtasks() {
		return false
	}
	for _, s := range t.Subtasks {
		if s.Status != StatusFinish {
			return false
		}
	}
	return true
}

// CountStatus returns the number of subtasks in the given status
func (t *Task) CountStatus(status SubtaskStatus) int {
	n := 0
	for _, s := range t.Subtasks {
		if s.Status == status {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand out of the manager lock
func (t *Task) Clone() *Task {
	c := *t
	c.Subtasks = make([]*Subtask, len(t.Subtasks))
	for i, s := range t.Subtasks {
		sc := *s
		c.Subtasks[i] = &sc
	}
	return &c
}

// generateTaskID generates a unique task ID
func generateTaskID() string {
	return "task-" + uuid.NewString()
}
