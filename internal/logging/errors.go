package logging

import "errors"

var (
	// ErrNoLogsDir is returned when a file sink or a logger path is requested
	// but dirs.logs is not configured.
	ErrNoLogsDir = errors.New("logs directory (dirs.logs) is not configured")
)
