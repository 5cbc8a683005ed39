package config

import (
	"strings"
	"time"

	"fyne.io/fyne/v2"

	"github.com/ytget/sharedl/internal/download"
	"github.com/ytget/sharedl/internal/platform"
	"github.com/ytget/sharedl/internal/share"
)

// Settings keys for Fyne preferences
const (
	KeyDownloadDir        = "download_directory"
	KeyMaxPending         = "max_pending_subtasks"
	KeyChallengeDelay     = "challenge_delay_ms"
	KeyMergeGrace         = "merge_grace_ms"
	KeySpeedLimit         = "speed_limit_kbps"
	KeyAPIBaseURL         = "api_base_url"
	KeyDisguiseExtensions = "disguise_extensions"
	KeyAutoRevealComplete = "auto_reveal_on_complete"
)

// Default values
const (
	DefaultMaxPending         = download.DefaultMaxPending
	DefaultChallengeDelayMs   = int(share.DefaultChallengeDelay / time.Millisecond)
	DefaultMergeGraceMs       = int(download.DefaultMergeGrace / time.Millisecond)
	DefaultAPIBaseURL         = "http://127.0.0.1:8790"
	DefaultAutoRevealComplete = false

	// MaxPendingLimit keeps the transfer cap at or below the manager default
	MaxPendingLimit = download.DefaultMaxPending
)

// Settings manages application configuration
type Settings struct {
	prefs fyne.Preferences
}

// NewSettings creates a new settings manager
func NewSettings(prefs fyne.Preferences) *Settings {
	return &Settings{prefs: prefs}
}

// GetDownloadDirectory returns the configured download directory
func (s *Settings) GetDownloadDirectory() string {
	dir := s.prefs.String(KeyDownloadDir)
	if dir == "" {
		// Use system default Downloads directory
		defaultDir, err := platform.GetHomeDownloadsDir()
		if err != nil {
			defaultDir = "/tmp/downloads"
		}
		s.SetDownloadDirectory(defaultDir)
		return defaultDir
	}
	return dir
}

// SetDownloadDirectory sets the download directory
func (s *Settings) SetDownloadDirectory(dir string) {
	s.prefs.SetString(KeyDownloadDir, dir)
}

// GetMaxPending returns how many subtasks may transfer at once
func (s *Settings) GetMaxPending() int {
	value := s.prefs.Int(KeyMaxPending)
	if value <= 0 {
		s.SetMaxPending(DefaultMaxPending)
		return DefaultMaxPending
	}
	return value
}

// SetMaxPending sets the pending subtask cap, clamped to 1..MaxPendingLimit
func (s *Settings) SetMaxPending(count int) {
	if count < 1 {
		count = 1
	}
	if count > MaxPendingLimit {
		count = MaxPendingLimit
	}
	s.prefs.SetInt(KeyMaxPending, count)
}

// GetChallengeDelay returns the wait before a challenge validation is submitted
func (s *Settings) GetChallengeDelay() time.Duration {
	ms := s.prefs.IntWithFallback(KeyChallengeDelay, DefaultChallengeDelayMs)
	if ms < 0 {
		ms = DefaultChallengeDelayMs
	}
	return time.Duration(ms) * time.Millisecond
}

// SetChallengeDelay sets the challenge validation delay
func (s *Settings) SetChallengeDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.prefs.SetInt(KeyChallengeDelay, int(d/time.Millisecond))
}

// GetMergeGrace returns the wait between merging parts and deleting them
func (s *Settings) GetMergeGrace() time.Duration {
	ms := s.prefs.IntWithFallback(KeyMergeGrace, DefaultMergeGraceMs)
	if ms < 0 {
		ms = DefaultMergeGraceMs
	}
	return time.Duration(ms) * time.Millisecond
}

// SetMergeGrace sets the merge grace period
func (s *Settings) SetMergeGrace(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.prefs.SetInt(KeyMergeGrace, int(d/time.Millisecond))
}

// GetSpeedLimitKBps returns the shared speed limit in KiB/s, 0 is unlimited
func (s *Settings) GetSpeedLimitKBps() int {
	value := s.prefs.Int(KeySpeedLimit)
	if value < 0 {
		return 0
	}
	return value
}

// SetSpeedLimitKBps sets the speed limit
func (s *Settings) SetSpeedLimitKBps(kbps int) {
	if kbps < 0 {
		kbps = 0
	}
	s.prefs.SetInt(KeySpeedLimit, kbps)
}

// GetAPIBaseURL returns the address service endpoint
func (s *Settings) GetAPIBaseURL() string {
	return s.prefs.StringWithFallback(KeyAPIBaseURL, DefaultAPIBaseURL)
}

// SetAPIBaseURL sets the address service endpoint
func (s *Settings) SetAPIBaseURL(base string) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultAPIBaseURL
	}
	s.prefs.SetString(KeyAPIBaseURL, base)
}

// GetDisguiseExtensions returns the extensions stripped from folder entry names
func (s *Settings) GetDisguiseExtensions() []string {
	raw := s.prefs.StringWithFallback(KeyDisguiseExtensions, strings.Join(platform.DefaultDisguiseExtensions, ","))
	return ParseExtensions(raw)
}

// SetDisguiseExtensions stores the extensions as a comma separated list
func (s *Settings) SetDisguiseExtensions(exts []string) {
	s.prefs.SetString(KeyDisguiseExtensions, strings.Join(exts, ","))
}

// GetAutoRevealOnComplete returns whether to auto-reveal completed downloads
func (s *Settings) GetAutoRevealOnComplete() bool {
	return s.prefs.BoolWithFallback(KeyAutoRevealComplete, DefaultAutoRevealComplete)
}

// SetAutoRevealOnComplete sets whether to auto-reveal completed downloads
func (s *Settings) SetAutoRevealOnComplete(autoReveal bool) {
	s.prefs.SetBool(KeyAutoRevealComplete, autoReveal)
}

// ManagerConfig builds the download manager configuration from the stored settings
func (s *Settings) ManagerConfig() download.Config {
	cfg := download.DefaultConfig()
	cfg.Dir = s.GetDownloadDirectory()
	cfg.MaxPending = s.GetMaxPending()
	cfg.MergeGrace = s.GetMergeGrace()
	cfg.SpeedLimit = int64(s.GetSpeedLimitKBps()) * 1024
	cfg.DisguiseExtensions = s.GetDisguiseExtensions()
	return cfg
}

// ParseExtensions splits a comma separated list into dotted, lower-case extensions
func ParseExtensions(raw string) []string {
	exts := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		exts = append(exts, part)
	}
	return exts
}
