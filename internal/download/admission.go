package download

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ytget/sharedl/internal/model"
	"github.com/ytget/sharedl/internal/platform"
)

// AddTask validates req against the active list and the destination, then enqueues it.
// An existing destination is only deleted if the notifier confirms the overwrite.
func (m *Manager) AddTask(ctx context.Context, req TaskRequest) (*model.Task, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.Name = strings.TrimSpace(req.Name)
	if req.URL == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: url and name are required", ErrInvalidTask)
	}
	if req.Name != filepath.Base(req.Name) || req.Name == "." || req.Name == ".." {
		return nil, fmt.Errorf("%w: name %q must be a plain file name", ErrInvalidTask, req.Name)
	}

	// Admissions run one at a time so the checks below and the append
	// stay a single step while the overwrite prompt is open.
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	task := model.NewTask(req.Name, req.URL, m.dir, req.Pwd, req.Merge)
	err := m.checkDuplicateLocked(task)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := platform.CreateDirectoryIfNotExists(m.fs, task.Dir); err != nil {
		return nil, err
	}
	if err := m.confirmOverwrite(ctx, task.FinalPath()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.tasks = append(m.tasks, task)
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Info().Str("url", task.URL).Str("name", task.Name).Bool("merge", task.Merge).Msg("task added")
	m.notifyUpdate(snapshot)
	m.persist()
	m.kick()
	return snapshot, nil
}

// checkDuplicateLocked rejects task when an active task, or a finished one whose
// output is still being placed, has the same url or destination.
func (m *Manager) checkDuplicateLocked(task *model.Task) error {
	for _, t := range slices.Concat(m.tasks, m.placing) {
		if t.URL == task.URL {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.URL)
		}
		if t.FinalPath() == task.FinalPath() {
			return fmt.Errorf("%w: %s is the destination of %s", ErrDuplicateTask, task.FinalPath(), t.URL)
		}
	}
	return nil
}

func (m *Manager) confirmOverwrite(ctx context.Context, dest string) error {
	exists, err := platform.Exists(m.fs, dest)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	ok, err := m.notifier.ConfirmOverwrite(ctx, dest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAdmissionCancelled, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s already exists", ErrAdmissionCancelled, dest)
	}
	if err := m.fs.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dest, err)
	}
	m.logger.Info().Str("path", dest).Msg("existing destination removed")
	return nil
}
