package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ytget/sharedl/internal/model"
	"github.com/ytget/sharedl/internal/platform"
	"github.com/ytget/sharedl/internal/share"
	"github.com/ytget/sharedl/internal/store"
)

// Defaults for Config
const (
	DefaultMaxPending        = 3
	DefaultSchedulerDebounce = 200 * time.Millisecond
	DefaultSchedulerInterval = time.Second
	DefaultMergeGrace        = time.Second
)

// Config holds the manager settings
type Config struct {
	// Dir is the destination root; empty means the persisted one or ~/Downloads
	Dir string

	// MaxPending caps the pending subtasks across all tasks, at most DefaultMaxPending
	MaxPending int

	SchedulerDebounce time.Duration
	SchedulerInterval time.Duration

	// MergeGrace is waited between merging parts and removing them
	MergeGrace time.Duration

	// SpeedLimit in bytes per second shared by all transfers, 0 disables it
	SpeedLimit int64

	// DisguiseExtensions are stripped from folder entry names when not merging
	DisguiseExtensions []string
}

// DefaultConfig returns the default manager settings
func DefaultConfig() Config {
	return Config{
		MaxPending:         DefaultMaxPending,
		SchedulerDebounce:  DefaultSchedulerDebounce,
		SchedulerInterval:  DefaultSchedulerInterval,
		MergeGrace:         DefaultMergeGrace,
		DisguiseExtensions: platform.DefaultDisguiseExtensions,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MaxPending < 1 || c.MaxPending > DefaultMaxPending {
		c.MaxPending = d.MaxPending
	}
	if c.SchedulerDebounce <= 0 {
		c.SchedulerDebounce = d.SchedulerDebounce
	}
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = d.SchedulerInterval
	}
	if c.MergeGrace < 0 {
		c.MergeGrace = 0
	}
	if c.DisguiseExtensions == nil {
		c.DisguiseExtensions = d.DisguiseExtensions
	}
}

// Option configures a Manager
type Option func(*Manager)

// WithFs sets the filesystem downloads are written to
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithStore sets where the task lists are persisted
func WithStore(kv store.KV) Option {
	return func(m *Manager) { m.kv = kv }
}

// WithNotifier sets the sink for errors and overwrite confirmations
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithHooks sets the task event callbacks
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithSpaceCheck replaces the free space probe run before each transfer
func WithSpaceCheck(fn func(path string, need int64) error) Option {
	return func(m *Manager) { m.spaceCheck = fn }
}

// token cancels one in-flight transfer or listing; done is closed once it settled
type token struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the download task scheduler
type Manager struct {
	mu        sync.Mutex
	admitMu   sync.Mutex
	persistMu sync.Mutex

	tasks     []*model.Task
	finished  []*model.Task
	placing   []*model.Task // finished, output not in place yet
	dir       string
	tokens    map[string]*token // keyed by subtask url
	resolving map[string]*token // keyed by task url
	closed    bool

	slots   *semaphore.Weighted
	kickCh  chan struct{}
	limiter *rate.Limiter

	cfg        Config
	resolver   share.Resolver
	opener     share.StreamOpener
	fs         afero.Fs
	kv         store.KV
	notifier   Notifier
	hooks      Hooks
	logger     zerolog.Logger
	spaceCheck func(path string, need int64) error

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Downloader = (*Manager)(nil)

// NewManager creates a manager and restores the persisted task lists.
// Subtasks that were pending when the state was saved come back paused.
func NewManager(cfg Config, resolver share.Resolver, opener share.StreamOpener, opts ...Option) (*Manager, error) {
	cfg.normalize()

	m := &Manager{
		tokens:     make(map[string]*token),
		resolving:  make(map[string]*token),
		slots:      semaphore.NewWeighted(int64(cfg.MaxPending)),
		kickCh:     make(chan struct{}, 1),
		cfg:        cfg,
		resolver:   resolver,
		opener:     opener,
		fs:         afero.NewOsFs(),
		kv:         store.NewMemory(),
		notifier:   nopNotifier{},
		logger:     zerolog.Nop(),
		spaceCheck: platform.CheckFreeSpace,
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.SpeedLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.SpeedLimit), int(cfg.SpeedLimit))
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if err := m.load(); err != nil {
		m.cancel()
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	snap, err := store.LoadSnapshot(m.kv)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	for _, task := range snap.List {
		for _, sub := range task.Subtasks {
			if sub.Status == model.StatusPending {
				_ = sub.SetStatus(model.StatusPause)
				sub.Resolved = 0
			}
		}
	}
	m.tasks = snap.List
	m.finished = snap.FinishList

	m.dir = m.cfg.Dir
	if m.dir == "" {
		m.dir = snap.Dir
	}
	if m.dir == "" {
		if m.dir, err = platform.GetHomeDownloadsDir(); err != nil {
			return fmt.Errorf("failed to pick a download directory: %w", err)
		}
	}

	m.logger.Debug().
		Int("active", len(m.tasks)).
		Int("finished", len(m.finished)).
		Str("dir", m.dir).
		Msg("tasks restored")
	return nil
}

// SetUpdateCallback sets the function called with a copy of a task on every change
func (m *Manager) SetUpdateCallback(fn func(*model.Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks.OnUpdate = fn
}

// Dir returns the destination root for new tasks
func (m *Manager) Dir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dir
}

// SetDir changes the destination root for new tasks. Existing tasks keep theirs.
func (m *Manager) SetDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return errors.New("download directory is empty")
	}
	if err := platform.CreateDirectoryIfNotExists(m.fs, dir); err != nil {
		return err
	}
	m.mu.Lock()
	m.dir = dir
	m.mu.Unlock()
	m.persist()
	return nil
}

// GetTask returns a copy of the active task with the given url
func (m *Manager) GetTask(url string) (*model.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task := m.findLocked(url); task != nil {
		return task.Clone(), true
	}
	return nil, false
}

// Tasks returns copies of the active tasks in list order
func (m *Manager) Tasks() []*model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTasks(m.tasks)
}

// FinishedTasks returns copies of the finished task records
func (m *Manager) FinishedTasks() []*model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTasks(m.finished)
}

// Start advances the task with the given url by one subtask.
// An unresolved task is listed in the background first and started once the
// listing arrives; ctx bounds that listing. With reset, paused and failed
// subtasks become ready again. Start is a no-op when the task already has a
// pending subtask, has nothing ready, or the pending cap is reached.
func (m *Manager) Start(ctx context.Context, url string, reset bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	task := m.findLocked(url)
	if task == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, url)
	}
	if reset {
		resetLocked(task)
	}
	if task.Resolving {
		m.mu.Unlock()
		return nil
	}

	if !task.HasSubtasks() {
		task.Resolving = true
		task.Error = ""
		task.Held = false

		rctx, cancel := context.WithCancel(m.ctx)
		stop := context.AfterFunc(ctx, cancel)
		tok := &token{cancel: cancel, done: make(chan struct{})}
		m.resolving[url] = tok
		m.wg.Add(1)
		snapshot := task.Clone()
		m.mu.Unlock()

		go m.resolve(rctx, task, tok, stop)
		m.notifyUpdate(snapshot)
		return nil
	}

	sub := task.NextReady()
	if sub == nil || task.CountStatus(model.StatusPending) > 0 {
		m.mu.Unlock()
		return nil
	}
	if _, busy := m.tokens[sub.URL]; busy {
		m.mu.Unlock()
		return nil
	}
	if !m.slots.TryAcquire(1) {
		m.mu.Unlock()
		m.logger.Debug().Str("url", url).Msg("pending cap reached, start deferred")
		return nil
	}
	if err := sub.SetStatus(model.StatusPending); err != nil {
		m.slots.Release(1)
		m.mu.Unlock()
		return err
	}
	sub.Resolved = 0
	sub.Error = ""

	tctx, cancel := context.WithCancel(m.ctx)
	tok := &token{cancel: cancel, done: make(chan struct{})}
	m.tokens[sub.URL] = tok
	m.wg.Add(1)
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Info().Str("task", task.Name).Str("subtask", sub.Name).Msg("transfer started")
	go m.transfer(tctx, task, sub, tok)

	m.notifyUpdate(snapshot)
	m.persist()
	m.kick()
	return nil
}

// resolve runs the listing of an unresolved task and starts its first subtask.
// A listing cancelled by Pause, Remove or Close leaves the task held.
func (m *Manager) resolve(ctx context.Context, task *model.Task, tok *token, stop func() bool) {
	defer m.wg.Done()
	defer stop()

	urlType, subtasks, err := m.listSubtasks(ctx, task)

	m.mu.Lock()
	if m.resolving[task.URL] == tok {
		delete(m.resolving, task.URL)
	}
	task.Resolving = false
	active := m.findLocked(task.URL) == task
	cancelled := ctx.Err() != nil
	switch {
	case !active:
	case cancelled:
		task.Held = true
	case err != nil:
		task.Error = err.Error()
	default:
		task.URLType = urlType
		task.Subtasks = subtasks
	}
	snapshot := task.Clone()
	m.mu.Unlock()

	close(tok.done)
	if !active {
		return
	}

	switch {
	case cancelled:
		m.logger.Info().Str("url", task.URL).Msg("listing cancelled")
	case err != nil:
		m.logger.Error().Err(err).Str("url", task.URL).Msg("failed to resolve task")
		m.notifier.Error(snapshot, err)
	default:
		m.logger.Info().
			Str("url", task.URL).
			Str("type", string(urlType)).
			Int("subtasks", len(subtasks)).
			Msg("task resolved")
	}
	m.notifyUpdate(snapshot)
	m.persist()

	if !cancelled && err == nil {
		if err := m.Start(m.ctx, task.URL, false); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Debug().Err(err).Str("url", task.URL).Msg("failed to start resolved task")
		}
	}
	m.kick()
}

// listSubtasks lists the share behind task. It runs without the lock
// and only reads fields that never change after admission.
func (m *Manager) listSubtasks(ctx context.Context, task *model.Task) (model.URLType, []*model.Subtask, error) {
	listing, err := m.resolver.ListShare(ctx, task.URL, task.Pwd)
	if err != nil {
		return "", nil, err
	}
	urlType, err := model.ParseURLType(listing.Type)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", share.ErrNetwork, err)
	}

	var subtasks []*model.Subtask
	switch urlType {
	case model.URLTypeFile:
		sub := &model.Subtask{
			URL:    task.URL,
			Pwd:    task.Pwd,
			Dir:    task.TempDir(),
			Name:   task.Name,
			Status: model.StatusReady,
		}
		if len(listing.Entries) > 0 {
			sub.Size = listing.Entries[0].Size
		}
		subtasks = append(subtasks, sub)
	case model.URLTypeFolder:
		if len(listing.Entries) == 0 {
			return "", nil, fmt.Errorf("share folder %s is empty", task.URL)
		}
		for i, e := range listing.Entries {
			name := e.Name
			if name == "" {
				name = platform.DeriveFileName(e.URL, i)
			}
			if !task.Merge {
				name = platform.RestoreFileName(name, m.cfg.DisguiseExtensions)
			}
			pwd := e.Pwd
			if pwd == "" {
				pwd = task.Pwd
			}
			subtasks = append(subtasks, &model.Subtask{
				URL:    e.URL,
				Pwd:    pwd,
				Dir:    task.TempDir(),
				Name:   filepath.Base(name),
				Size:   e.Size,
				Status: model.StatusReady,
			})
		}
	}

	return urlType, subtasks, nil
}

func resetLocked(task *model.Task) {
	task.Error = ""
	task.Held = false
	for _, sub := range task.Subtasks {
		if sub.Status.IsResumable() {
			_ = sub.SetStatus(model.StatusReady)
		}
	}
}

// StartAll resumes every paused or failed subtask and starts each task
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	urls := make([]string, 0, len(m.tasks))
	for _, task := range m.tasks {
		resetLocked(task)
		urls = append(urls, task.URL)
	}
	m.mu.Unlock()

	var errs []error
	for _, url := range urls {
		if err := m.Start(ctx, url, false); err != nil && !errors.Is(err, ErrTaskNotFound) {
			errs = append(errs, err)
		}
	}
	m.kick()
	return errors.Join(errs...)
}

// Pause cancels the pending subtask or the listing of the task and waits until it settled.
// Pausing a task with nothing in flight is a no-op.
func (m *Manager) Pause(url string) error {
	m.mu.Lock()
	task := m.findLocked(url)
	if task == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, url)
	}
	toks := m.cancelTokensLocked(task)
	m.mu.Unlock()

	waitTokens(toks)
	m.logger.Info().Str("url", url).Int("cancelled", len(toks)).Msg("task paused")
	return nil
}

// PauseAll pauses every active task
func (m *Manager) PauseAll() error {
	m.mu.Lock()
	urls := make([]string, 0, len(m.tasks))
	for _, task := range m.tasks {
		urls = append(urls, task.URL)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, url := range urls {
		g.Go(func() error {
			if err := m.Pause(url); err != nil && !errors.Is(err, ErrTaskNotFound) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Remove drops the task from the active list, stops its transfer and deletes its temporary directory
func (m *Manager) Remove(url string) error {
	m.mu.Lock()
	idx := m.indexLocked(url)
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, url)
	}
	task := m.tasks[idx]
	m.tasks = append(m.tasks[:idx:idx], m.tasks[idx+1:]...)
	toks := m.cancelTokensLocked(task)
	m.mu.Unlock()

	waitTokens(toks)
	m.removeTemp(task)
	m.logger.Info().Str("url", url).Msg("task removed")
	m.persist()
	m.kick()
	return nil
}

// RemoveAll removes every active task
func (m *Manager) RemoveAll() error {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	var toks []*token
	for _, task := range tasks {
		toks = append(toks, m.cancelTokensLocked(task)...)
	}
	m.mu.Unlock()

	waitTokens(toks)
	for _, task := range tasks {
		m.removeTemp(task)
	}
	m.logger.Info().Int("count", len(tasks)).Msg("all tasks removed")
	m.persist()
	return nil
}

// RemoveAllFinish clears the finished task records. Downloaded files stay.
func (m *Manager) RemoveAllFinish() error {
	m.mu.Lock()
	m.finished = nil
	m.mu.Unlock()
	m.persist()
	return nil
}

func (m *Manager) removeTemp(task *model.Task) {
	if err := m.fs.RemoveAll(task.TempDir()); err != nil {
		m.logger.Warn().Err(err).Str("dir", task.TempDir()).Msg("failed to remove temporary directory")
	}
}

// Close pauses all transfers, waits for them and saves the state
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.PauseAll()
	m.cancel()
	m.wg.Wait()
	return errors.Join(err, m.save())
}

func (m *Manager) persist() {
	if err := m.save(); err != nil {
		m.logger.Error().Err(err).Msg("failed to save tasks")
	}
}

func (m *Manager) save() error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	snap := &store.Snapshot{
		List:       cloneTasks(m.tasks),
		FinishList: cloneTasks(m.finished),
		Dir:        m.dir,
	}
	m.mu.Unlock()

	return store.SaveSnapshot(m.kv, snap)
}

func (m *Manager) notifyUpdate(task *model.Task) {
	m.mu.Lock()
	fn := m.hooks.OnUpdate
	m.mu.Unlock()
	if fn != nil {
		fn(task)
	}
}

func (m *Manager) findLocked(url string) *model.Task {
	if i := m.indexLocked(url); i >= 0 {
		return m.tasks[i]
	}
	return nil
}

func (m *Manager) indexLocked(url string) int {
	for i, task := range m.tasks {
		if task.URL == url {
			return i
		}
	}
	return -1
}

// cancelTokensLocked cancels and returns the tokens of the task's listing and pending subtasks
func (m *Manager) cancelTokensLocked(task *model.Task) []*token {
	var toks []*token
	if tok, ok := m.resolving[task.URL]; ok {
		tok.cancel()
		toks = append(toks, tok)
	}
	for _, sub := range task.Subtasks {
		if sub.Status != model.StatusPending {
			continue
		}
		if tok, ok := m.tokens[sub.URL]; ok {
			tok.cancel()
			toks = append(toks, tok)
		}
	}
	return toks
}

func waitTokens(toks []*token) {
	for _, tok := range toks {
		<-tok.done
	}
}

func cloneTasks(tasks []*model.Task) []*model.Task {
	out := make([]*model.Task, len(tasks))
	for i, task := range tasks {
		out[i] = task.Clone()
	}
	return out
}
