package settings

import "errors"

var (
	// ErrConfiguration is returned when the settings cannot be loaded or a dotted
	// path cannot be applied. Callers are expected to stop on it during startup.
	ErrConfiguration = errors.New("configuration error")
)
