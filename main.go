package main

import (
	"context"
	"fmt"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/rs/zerolog"

	"github.com/ytget/sharedl/internal/config"
	"github.com/ytget/sharedl/internal/download"
	"github.com/ytget/sharedl/internal/share"
	"github.com/ytget/sharedl/internal/store"
	"github.com/ytget/sharedl/internal/ui"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppID   = "com.ytget.sharedl"
	AppName = "Share Downloader"

	// storePrefix namespaces the task lists inside the app preferences
	storePrefix = "tasks."
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	logger.Info().Str("version", version).Msg("starting")

	myApp := app.NewWithID(AppID)
	myApp.Settings().SetTheme(ui.NewCompactTheme())

	myWindow := myApp.NewWindow(fmt.Sprintf("%s v%s", AppName, version))
	myWindow.Resize(fyne.NewSize(ui.WindowWidth, ui.WindowHeight))

	settings := config.NewSettings(myApp.Preferences())

	client, err := share.NewHTTPClient(0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create http client")
	}
	shareOpts := []share.Option{
		share.WithLogger(logger.With().Str("component", "share").Logger()),
		share.WithChallengeDelay(settings.GetChallengeDelay()),
	}
	resolver := share.NewClient(settings.GetAPIBaseURL(), client, shareOpts...)
	opener := share.NewOpener(share.NewTransport(client, shareOpts...), shareOpts...)

	manager, err := download.NewManager(settings.ManagerConfig(), resolver, opener,
		download.WithStore(store.NewPreferences(myApp.Preferences(), storePrefix)),
		download.WithNotifier(ui.NewPrompter(myWindow, logger)),
		download.WithLogger(logger.With().Str("component", "download").Logger()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start download manager")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	ui.NewRootUI(myWindow, manager, settings, logger)

	myWindow.SetOnClosed(func() {
		cancel()
		if err := manager.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to save tasks")
		}
	})

	myWindow.ShowAndRun()
}
