package store

// Package store persists the task lists and destination directory through a
// small string key-value interface, backed by fyne preferences on the desktop
// and by SQLite for the headless CLI.
