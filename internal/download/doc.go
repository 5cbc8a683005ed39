package download

// Package download implements the task engine: admission of share links,
// resolution into subtasks, a capacity-limited scheduler, cancellable
// streaming transfers with pause/resume, and final placement of finished
// files (rename, merge, or folder rename).
