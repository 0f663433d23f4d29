package task

import "time"

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Event types published on the event bus.
const (
	EventStarted  = "task.started"
	EventFinished = "task.finished"
)

// Info describes one background task.
type Info struct {
	ID        string
	Key       string
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
	Err       string
}

func (i Info) Duration() time.Duration {
	if i.EndedAt.IsZero() {
		return time.Since(i.StartedAt)
	}
	return i.EndedAt.Sub(i.StartedAt)
}
