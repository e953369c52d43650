package service

import "fmt"

// AlreadyRunningError is returned by Trigger when another update run is
// active or a restart is pending
type AlreadyRunningError struct{}

func (e *AlreadyRunningError) Error() string {
	return "an update is already in progress"
}

// NoOpError is returned by Trigger when the resolved target equals the
// current version and force was not set
type NoOpError struct {
	Version string
}

func (e *NoOpError) Error() string {
	return fmt.Sprintf("already at version %s, nothing to update", e.Version)
}

// UnknownSourceError is returned when a caller names a release provider
// that is not configured
type UnknownSourceError struct {
	Name string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown release source %q", e.Name)
}

// UpdateError wraps unanticipated failures in the update flow
type UpdateError struct {
	Op  string
	Err error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update %s failed: %v", e.Op, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }
