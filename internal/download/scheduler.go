package download

import (
	"context"
	"errors"
	"time"

	"github.com/ytget/sharedl/internal/model"
)

// Run drives the scheduler until ctx is done or the manager is closed.
// Checks run after mutations settle for SchedulerDebounce and every SchedulerInterval.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SchedulerInterval)
	defer ticker.Stop()
	debounce := time.NewTimer(m.cfg.SchedulerDebounce)
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ctx.Done():
			return nil
		case <-m.kickCh:
			debounce.Reset(m.cfg.SchedulerDebounce)
		case <-debounce.C:
			m.checkQueue(ctx)
		case <-ticker.C:
			m.checkQueue(ctx)
		}
	}
}

// checkQueue starts the first task that can make progress.
// Listings run in the background, so a slow share never stalls the loop.
func (m *Manager) checkQueue(ctx context.Context) {
	m.mu.Lock()
	url := m.nextCandidateLocked()
	m.mu.Unlock()
	if url == "" {
		return
	}
	if err := m.Start(ctx, url, false); err != nil && !errors.Is(err, ErrClosed) {
		m.logger.Debug().Err(err).Str("url", url).Msg("scheduled start failed")
	}
}

// nextCandidateLocked picks the first ready task with work. Unresolved tasks
// are picked even at the cap since a listing takes no transfer slot.
func (m *Manager) nextCandidateLocked() string {
	if m.closed {
		return ""
	}
	full := len(m.tokens) >= m.cfg.MaxPending
	for _, task := range m.tasks {
		if task.Status() != model.TaskStatusReady || !task.Schedulable() {
			continue
		}
		if !task.HasSubtasks() {
			return task.URL
		}
		if full {
			continue
		}
		if _, busy := m.tokens[task.NextReady().URL]; busy {
			continue
		}
		return task.URL
	}
	return ""
}

func (m *Manager) kick() {
	select {
	case m.kickCh <- struct{}{}:
	default:
	}
}
