package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/sharedl/internal/model"
	"github.com/ytget/sharedl/internal/platform"
)

// progressInterval throttles OnUpdate while bytes are flowing
const progressInterval = 500 * time.Millisecond

const copyBufferSize = 64 * 1024

// transfer runs one pending subtask to a terminal status
func (m *Manager) transfer(ctx context.Context, task *model.Task, sub *model.Subtask, tok *token) {
	defer m.wg.Done()
	err := m.fetch(ctx, task, sub)
	m.complete(ctx, task, sub, tok, err)
}

// fetch resolves the direct address of sub and streams it into sub.Path()
func (m *Manager) fetch(ctx context.Context, task *model.Task, sub *model.Subtask) error {
	if err := platform.CreateDirectoryIfNotExists(m.fs, sub.Dir); err != nil {
		return err
	}

	direct, err := m.resolver.ResolveDirectURL(ctx, sub.URL, sub.Pwd)
	if err != nil {
		return err
	}
	stream, err := m.opener.Open(ctx, direct)
	if err != nil {
		return err
	}
	defer stream.Body.Close()

	m.mu.Lock()
	if size := stream.ContentLength(); size >= 0 && stream.IsAttachment() {
		sub.Size = size
	}
	need := sub.Size
	m.mu.Unlock()

	if need > 0 {
		if err := m.spaceCheck(sub.Dir, need); err != nil {
			return err
		}
	}

	f, err := m.fs.OpenFile(sub.Path(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, platform.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", sub.Path(), err)
	}

	var src io.Reader = stream.Body
	if m.limiter != nil {
		src = &rateLimitedReader{ctx: ctx, reader: src, limiter: m.limiter}
	}
	pw := &progressWriter{m: m, task: task, sub: sub, w: f}

	_, copyErr := io.CopyBuffer(pw, src, make([]byte, copyBufferSize))
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to write %s: %w", sub.Path(), closeErr)
	}
	return nil
}

// complete records the outcome of a transfer and advances the task.
// Cancellation always settles as pause, any other error as fail.
func (m *Manager) complete(ctx context.Context, task *model.Task, sub *model.Subtask, tok *token, err error) {
	m.mu.Lock()
	if m.tokens[sub.URL] == tok {
		delete(m.tokens, sub.URL)
	}
	m.slots.Release(1)

	status := model.StatusFinish
	switch {
	case err == nil:
		if sub.Size < sub.Resolved {
			sub.Size = sub.Resolved
		}
	case ctx.Err() != nil:
		status = model.StatusPause
	default:
		status = model.StatusFail
		sub.Error = err.Error()
	}
	if serr := sub.SetStatus(status); serr != nil {
		m.logger.Error().Err(serr).Str("subtask", sub.Name).Msg("unexpected subtask state")
	}

	// a removed task only needs its token settled
	idx := m.indexLocked(task.URL)
	active := idx >= 0 && m.tasks[idx] == task
	done := active && task.AllFinished()
	if done {
		m.tasks = append(m.tasks[:idx:idx], m.tasks[idx+1:]...)
		task.FinishedAt = time.Now()
		m.finished = append(m.finished, task)
		m.placing = append(m.placing, task)
	}
	// only the subtask itself stays paused or failed, its ready siblings go on
	more := active && !done && task.NextReady() != nil
	snapshot := task.Clone()
	subSnapshot := *sub
	hooks := m.hooks
	m.mu.Unlock()

	close(tok.done)

	switch status {
	case model.StatusFinish:
		m.logger.Info().Str("task", task.Name).Str("subtask", sub.Name).Int64("bytes", subSnapshot.Resolved).Msg("transfer finished")
		if hooks.OnSubtaskFinished != nil {
			hooks.OnSubtaskFinished(snapshot, &subSnapshot)
		}
	case model.StatusPause:
		m.logger.Info().Str("task", task.Name).Str("subtask", sub.Name).Msg("transfer paused")
	case model.StatusFail:
		m.logger.Error().Err(err).Str("task", task.Name).Str("subtask", sub.Name).Msg("transfer failed")
		m.notifier.Error(snapshot, err)
	}
	m.notifyUpdate(snapshot)

	if done {
		if hooks.OnTaskFinished != nil {
			hooks.OnTaskFinished(snapshot)
		}
		m.finishTask(task, snapshot)
		m.placed(task)
	} else if more {
		if err := m.Start(m.ctx, task.URL, false); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Debug().Err(err).Str("url", task.URL).Msg("failed to start next subtask")
		}
	}

	m.persist()
	m.kick()
}

// progressWriter writes to w and accounts the bytes on sub
type progressWriter struct {
	m        *Manager
	task     *model.Task
	sub      *model.Subtask
	w        io.Writer
	lastSent time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n <= 0 {
		return n, err
	}

	p.m.mu.Lock()
	p.sub.Resolved += int64(n)
	if p.sub.Size > 0 && p.sub.Resolved > p.sub.Size {
		p.sub.Size = p.sub.Resolved
	}
	var snapshot *model.Task
	if now := time.Now(); now.Sub(p.lastSent) >= progressInterval {
		p.lastSent = now
		snapshot = p.task.Clone()
	}
	p.m.mu.Unlock()

	if snapshot != nil {
		p.m.notifyUpdate(snapshot)
	}
	return n, err
}

// rateLimitedReader throttles reads through a limiter shared by all transfers
type rateLimitedReader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := r.reader.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
