package scheduler

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"stockbot/internal/session"
)

// Status is a read-only view of one session's scheduler.
type Status struct {
	Enabled     bool
	Interval    time.Duration
	LastFiredAt time.Time
	NextFire    time.Time // zero when disabled or the window is empty
	Window      Window
}

// StatusOf computes the status of a session as of now.
func StatusOf(st session.State, w Window, now time.Time) Status {
	out := Status{Enabled: st.Enabled, Interval: st.Interval, LastFiredAt: st.LastFiredAt, Window: w}
	if !st.Enabled {
		return out
	}
	from := now
	if !st.LastFiredAt.IsZero() {
		if due := st.LastFiredAt.Add(st.Interval); due.After(from) {
			from = due
		}
	}
	if next, ok := w.Next(from); ok {
		out.NextFire = next
	}
	return out
}

// Lines renders s for chat.
func (s Status) Lines(now time.Time) []string {
	state := "disabled"
	if s.Enabled {
		state = "enabled"
	}
	last := "never"
	if !s.LastFiredAt.IsZero() {
		last = humanize.RelTime(s.LastFiredAt, now, "ago", "from now")
	}
	out := []string{
		"Scheduler: " + state,
		fmt.Sprintf("Interval: %d seconds", int64(s.Interval/time.Second)),
		"Window: " + s.Window.String(),
		"Last fired: " + last,
	}
	if !s.NextFire.IsZero() {
		next := "now"
		if s.NextFire.After(now) {
			next = humanize.RelTime(s.NextFire, now, "ago", "from now")
		}
		out = append(out, "Next fire: "+next)
	}
	return out
}
