package task

import "errors"

var (
	ErrAlreadyRunning = errors.New("task already running")
	ErrEmptyKey       = errors.New("task key is empty")
)
