package platform

// Package platform contains OS and filesystem glue: afero-backed directory and
// merge helpers, file-name restoration, free-space probing, and OS reveal.
