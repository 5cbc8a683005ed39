package download

import (
	"fmt"
	"slices"
	"time"

	"github.com/ytget/sharedl/internal/model"
	"github.com/ytget/sharedl/internal/platform"
)

// finishTask places the output of a finished task and records any failure on
// its finished entry. Nothing is rolled back.
func (m *Manager) finishTask(task, snapshot *model.Task) {
	err := m.postProcess(snapshot)
	if err == nil {
		m.logger.Info().Str("task", snapshot.Name).Str("path", snapshot.FinalPath()).Msg("task finished")
		return
	}

	m.mu.Lock()
	task.Error = err.Error()
	failed := task.Clone()
	m.mu.Unlock()

	m.logger.Error().Err(err).Str("task", snapshot.Name).Msg("post-processing failed")
	m.notifier.Error(failed, err)
	m.notifyUpdate(failed)
}

// placed drops task from the set that still blocks its url and destination
func (m *Manager) placed(task *model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placing = slices.DeleteFunc(m.placing, func(t *model.Task) bool { return t == task })
}

func (m *Manager) postProcess(task *model.Task) error {
	switch {
	case task.URLType == model.URLTypeFile:
		return m.placeFile(task)
	case task.Merge:
		return m.mergeParts(task)
	default:
		return m.placeFolder(task)
	}
}

// placeFile moves the single downloaded file out of the temporary directory
func (m *Manager) placeFile(task *model.Task) error {
	if len(task.Subtasks) != 1 {
		return fmt.Errorf("file task %s has %d subtasks", task.URL, len(task.Subtasks))
	}
	src := task.Subtasks[0].Path()
	if err := m.fs.Rename(src, task.FinalPath()); err != nil {
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
	if err := m.fs.RemoveAll(task.TempDir()); err != nil {
		return fmt.Errorf("failed to remove %s: %w", task.TempDir(), err)
	}
	return nil
}

// mergeParts concatenates the parts in name order, then drops them after a grace period
func (m *Manager) mergeParts(task *model.Task) error {
	if err := platform.MergeFiles(m.fs, task.TempDir(), task.FinalPath()); err != nil {
		return err
	}

	timer := time.NewTimer(m.cfg.MergeGrace)
	select {
	case <-timer.C:
	case <-m.ctx.Done():
		timer.Stop()
	}

	if err := m.fs.RemoveAll(task.TempDir()); err != nil {
		return fmt.Errorf("failed to remove %s: %w", task.TempDir(), err)
	}
	return nil
}

// placeFolder strips the in-progress suffix from the temporary directory
func (m *Manager) placeFolder(task *model.Task) error {
	if err := m.fs.Rename(task.TempDir(), task.FinalPath()); err != nil {
		return fmt.Errorf("failed to rename %s: %w", task.TempDir(), err)
	}
	return nil
}
