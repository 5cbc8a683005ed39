package share

// Package share talks to the file-sharing service: it resolves share
// references to direct addresses, lists shared folders, and opens transfer
// streams, passing the service's HTML challenge page when one is served in
// place of the file.
