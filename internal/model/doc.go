package model

// Package model defines domain data structures shared across the app: download
// tasks, their subtasks, and the subtask status machine. Derived values such as
// totals and aggregate status are computed from subtasks, never stored.
