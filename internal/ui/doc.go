package ui

// Package ui contains the Fyne-based desktop user interface. It turns the
// add form and row buttons into download manager calls, renders the active
// and finished task lists, and answers errors and overwrite questions with dialogs.
