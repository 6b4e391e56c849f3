package processor

import "errors"

var (
	// ErrRunInProgress is returned when Run is called while a run is active
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrNoLibraries is returned when no movie or show library matched
	ErrNoLibraries = errors.New("no matching libraries")
)
