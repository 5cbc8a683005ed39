package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/ytget/sharedl/internal/download"
	"github.com/ytget/sharedl/internal/model"
	"github.com/ytget/sharedl/internal/platform"
	"github.com/ytget/sharedl/internal/share"
	"github.com/ytget/sharedl/internal/store"
)

var version = "dev"

const (
	defaultAPIBase  = "http://127.0.0.1:8790"
	progressEvery   = time.Second
	dataDirName     = "sharedl"
	maxParallelFlag = download.DefaultMaxPending
)

type options struct {
	dir            string
	dataDir        string
	name           string
	pwd            string
	merge          bool
	api            string
	limitKBps      int64
	parallel       int
	challengeDelay time.Duration
	yes            bool
	verbose        bool
}

func main() {
	opts := parseFlags()

	level := zerolog.InfoLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, flag.Args(), logger); err != nil {
		logger.Error().Err(err).Msg("sharedl failed")
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "Download directory (default: last used or ~/Downloads)")
	flag.StringVar(&opts.dataDir, "data", "", "Directory of the task database (default: user config dir)")
	flag.StringVar(&opts.name, "name", "", "Name of the downloaded file or folder (single link only)")
	flag.StringVar(&opts.pwd, "pwd", "", "Share password")
	flag.BoolVar(&opts.merge, "merge", false, "Concatenate the parts of a folder into one file")
	flag.StringVar(&opts.api, "api", defaultAPIBase, "Address service base URL")
	flag.Int64Var(&opts.limitKBps, "limit", 0, "Speed limit in KiB/s, 0 = unlimited")
	flag.IntVar(&opts.parallel, "parallel", download.DefaultMaxPending, "Maximum parallel transfers")
	flag.DurationVar(&opts.challengeDelay, "challenge-delay", share.DefaultChallengeDelay, "Wait before answering a challenge page")
	flag.BoolVar(&opts.yes, "y", false, "Overwrite existing destinations without asking")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [share-url ...]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintln(flag.CommandLine.Output(), "Without links, resumes the stored tasks.")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("sharedl", version)
		os.Exit(0)
	}
	if opts.parallel < 1 || opts.parallel > maxParallelFlag {
		fmt.Fprintf(os.Stderr, "-parallel must be between 1 and %d\n", maxParallelFlag)
		os.Exit(2)
	}
	if opts.name != "" && flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "-name can only be used with a single link")
		os.Exit(2)
	}
	return opts
}

func run(ctx context.Context, opts options, links []string, logger zerolog.Logger) error {
	dataDir := opts.dataDir
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to locate config dir: %w", err)
		}
		dataDir = filepath.Join(base, dataDirName)
	}
	kv, err := store.OpenSQLite(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}
	defer kv.Close()

	client, err := share.NewHTTPClient(0)
	if err != nil {
		return err
	}
	shareOpts := []share.Option{
		share.WithLogger(logger.With().Str("component", "share").Logger()),
		share.WithChallengeDelay(opts.challengeDelay),
	}
	resolver := share.NewClient(opts.api, client, shareOpts...)
	opener := share.NewOpener(share.NewTransport(client, shareOpts...), shareOpts...)

	cfg := download.DefaultConfig()
	cfg.Dir = opts.dir
	cfg.MaxPending = opts.parallel
	cfg.SpeedLimit = opts.limitKBps * 1024

	manager, err := download.NewManager(cfg, resolver, opener,
		download.WithStore(kv),
		download.WithLogger(logger.With().Str("component", "download").Logger()),
		download.WithNotifier(newConsoleNotifier(opts.yes, os.Stdin, logger)),
		download.WithHooks(download.Hooks{
			OnTaskFinished: func(task *model.Task) {
				logger.Info().
					Str("name", task.Name).
					Str("size", humanize.IBytes(uint64(task.Total()))).
					Msg("download finished")
			},
		}),
	)
	if err != nil {
		return err
	}

	for i, link := range links {
		name := opts.name
		if name == "" {
			name = platform.DeriveFileName(link, i)
		}
		_, err := manager.AddTask(ctx, download.TaskRequest{Name: name, URL: link, Pwd: opts.pwd, Merge: opts.merge})
		switch {
		case errors.Is(err, download.ErrDuplicateTask):
			logger.Warn().Str("url", link).Msg("already queued")
		case err != nil:
			logger.Error().Err(err).Str("url", link).Msg("not added")
		}
	}
	if len(links) == 0 {
		if err := manager.StartAll(ctx); err != nil {
			logger.Warn().Err(err).Msg("some tasks did not start")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = manager.Run(runCtx) }()

	waitIdle(runCtx, manager, logger)
	cancel()

	if err := manager.Close(); err != nil {
		return err
	}
	report(manager, logger)
	return nil
}

// waitIdle logs progress until no task can make progress on its own
func waitIdle(ctx context.Context, manager *download.Manager, logger zerolog.Logger) {
	ticker := time.NewTicker(progressEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("interrupted, pausing transfers")
			return
		case <-ticker.C:
		}

		busy := false
		for _, task := range manager.Tasks() {
			if task.Status() == model.TaskStatusPending || task.Schedulable() {
				busy = true
			}
			if task.Status() == model.TaskStatusPending {
				logger.Info().
					Str("name", task.Name).
					Str("done", humanize.IBytes(uint64(task.Resolved()))).
					Str("total", humanize.IBytes(uint64(task.Total()))).
					Int("percent", int(task.Progress()*100)).
					Msg("downloading")
			}
		}
		if !busy {
			return
		}
	}
}

func report(manager *download.Manager, logger zerolog.Logger) {
	for _, task := range manager.Tasks() {
		ev := logger.Warn().Str("name", task.Name).Str("url", task.URL)
		switch {
		case task.Error != "":
			ev.Str("error", task.Error).Msg("not resolved")
		case task.CountStatus(model.StatusFail) > 0:
			ev.Int("failed", task.CountStatus(model.StatusFail)).Msg("incomplete, rerun to retry")
		default:
			ev.Msg("paused, rerun to resume")
		}
	}
}

// consoleNotifier logs errors and asks overwrite questions on the terminal
type consoleNotifier struct {
	yes    bool
	in     *bufio.Reader
	logger zerolog.Logger
}

func newConsoleNotifier(yes bool, in io.Reader, logger zerolog.Logger) *consoleNotifier {
	return &consoleNotifier{yes: yes, in: bufio.NewReader(in), logger: logger}
}

func (n *consoleNotifier) Error(task *model.Task, err error) {
	ev := n.logger.Error().Err(err)
	if task != nil {
		ev = ev.Str("name", task.Name)
	}
	ev.Msg("download error")
}

func (n *consoleNotifier) ConfirmOverwrite(ctx context.Context, path string) (bool, error) {
	if n.yes {
		return true, nil
	}
	fmt.Fprintf(os.Stderr, "%s exists. Overwrite? [y/N] ", path)

	answer := make(chan string, 1)
	go func() {
		line, _ := n.in.ReadString('\n')
		answer <- line
	}()
	select {
	case line := <-answer:
		line = strings.ToLower(strings.TrimSpace(line))
		return line == "y" || line == "yes", nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
