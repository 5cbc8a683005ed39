package ui

import (
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/sharedl/internal/config"
)

// SettingsDialog represents the settings configuration dialog
type SettingsDialog struct {
	settings *config.Settings
	window   fyne.Window
	dialog   *dialog.ConfirmDialog
	onSaved  func()

	downloadDirEntry    *widget.Entry
	maxPendingEntry     *widget.Entry
	speedLimitEntry     *widget.Entry
	challengeDelayEntry *widget.Entry
	mergeGraceEntry     *widget.Entry
	apiBaseEntry        *widget.Entry
	disguiseEntry       *widget.Entry
	autoRevealCheck     *widget.Check
}

// ShowSettingsDialog creates and shows the settings dialog. onSaved runs after a save.
func ShowSettingsDialog(window fyne.Window, settings *config.Settings, onSaved func()) {
	sd := &SettingsDialog{
		settings: settings,
		window:   window,
		onSaved:  onSaved,
	}
	sd.createUI()
	sd.loadCurrentSettings()
	sd.dialog.Show()
}

func (sd *SettingsDialog) createUI() {
	sd.downloadDirEntry = widget.NewEntry()
	sd.downloadDirEntry.SetPlaceHolder("Download directory path")
	browseDirBtn := widget.NewButton("Browse", sd.onBrowseDirectory)
	downloadDirRow := container.NewBorder(nil, nil, nil, browseDirBtn, sd.downloadDirEntry)

	sd.maxPendingEntry = widget.NewEntry()
	sd.maxPendingEntry.SetPlaceHolder("1-" + strconv.Itoa(config.MaxPendingLimit))
	sd.speedLimitEntry = widget.NewEntry()
	sd.speedLimitEntry.SetPlaceHolder("0 = unlimited")
	sd.challengeDelayEntry = widget.NewEntry()
	sd.mergeGraceEntry = widget.NewEntry()
	sd.apiBaseEntry = widget.NewEntry()
	sd.apiBaseEntry.SetPlaceHolder(config.DefaultAPIBaseURL)
	sd.disguiseEntry = widget.NewEntry()
	sd.disguiseEntry.SetPlaceHolder(".zip")
	sd.autoRevealCheck = widget.NewCheck("Reveal finished downloads", nil)

	form := container.NewVBox(
		widget.NewLabel("Download Directory:"),
		downloadDirRow,
		widget.NewForm(
			widget.NewFormItem("Parallel transfers", sd.maxPendingEntry),
			widget.NewFormItem("Speed limit (KiB/s)", sd.speedLimitEntry),
			widget.NewFormItem("Challenge delay (ms)", sd.challengeDelayEntry),
			widget.NewFormItem("Merge grace (ms)", sd.mergeGraceEntry),
			widget.NewFormItem("Address service", sd.apiBaseEntry),
			widget.NewFormItem("Disguise extensions", sd.disguiseEntry),
		),
		sd.autoRevealCheck,
		widget.NewLabel("Transfer and service settings apply after a restart."),
	)

	sd.dialog = dialog.NewCustomConfirm("Settings", "Save", "Cancel", form, sd.onSave, sd.window)
	sd.dialog.Resize(fyne.NewSize(SettingsDialogWidth, SettingsDialogHeight))
}

func (sd *SettingsDialog) loadCurrentSettings() {
	sd.downloadDirEntry.SetText(sd.settings.GetDownloadDirectory())
	sd.maxPendingEntry.SetText(strconv.Itoa(sd.settings.GetMaxPending()))
	sd.speedLimitEntry.SetText(strconv.Itoa(sd.settings.GetSpeedLimitKBps()))
	sd.challengeDelayEntry.SetText(strconv.FormatInt(sd.settings.GetChallengeDelay().Milliseconds(), 10))
	sd.mergeGraceEntry.SetText(strconv.FormatInt(sd.settings.GetMergeGrace().Milliseconds(), 10))
	sd.apiBaseEntry.SetText(sd.settings.GetAPIBaseURL())
	sd.disguiseEntry.SetText(strings.Join(sd.settings.GetDisguiseExtensions(), ","))
	sd.autoRevealCheck.SetChecked(sd.settings.GetAutoRevealOnComplete())
}

func (sd *SettingsDialog) onBrowseDirectory() {
	dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		sd.downloadDirEntry.SetText(uri.Path())
	}, sd.window)
}

func (sd *SettingsDialog) onSave(confirmed bool) {
	if !confirmed {
		return
	}

	if dir := strings.TrimSpace(sd.downloadDirEntry.Text); dir != "" {
		sd.settings.SetDownloadDirectory(dir)
	}
	if n, err := strconv.Atoi(strings.TrimSpace(sd.maxPendingEntry.Text)); err == nil {
		sd.settings.SetMaxPending(n)
	}
	if n, err := strconv.Atoi(strings.TrimSpace(sd.speedLimitEntry.Text)); err == nil {
		sd.settings.SetSpeedLimitKBps(n)
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(sd.challengeDelayEntry.Text)); err == nil {
		sd.settings.SetChallengeDelay(time.Duration(ms) * time.Millisecond)
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(sd.mergeGraceEntry.Text)); err == nil {
		sd.settings.SetMergeGrace(time.Duration(ms) * time.Millisecond)
	}
	sd.settings.SetAPIBaseURL(sd.apiBaseEntry.Text)
	sd.settings.SetDisguiseExtensions(config.ParseExtensions(sd.disguiseEntry.Text))
	sd.settings.SetAutoRevealOnComplete(sd.autoRevealCheck.Checked)

	if sd.onSaved != nil {
		sd.onSaved()
	}
}
