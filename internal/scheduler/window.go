package scheduler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Window is the set of weekdays and hours in which a scheduler may fire.
// Times are evaluated in Location (process local time when nil).
type Window struct {
	Weekdays []time.Weekday
	Hours    []int
	Location *time.Location
}

// DefaultWindow is Monday to Friday, hours 9 through 17 inclusive, local time.
func DefaultWindow() Window {
	return Window{
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Hours:    []int{9, 10, 11, 12, 13, 14, 15, 16, 17},
	}
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

func (w Window) Contains(t time.Time) bool {
	t = t.In(w.loc())
	return slices.Contains(w.Weekdays, t.Weekday()) && slices.Contains(w.Hours, t.Hour())
}

// Next returns the first whole hour at or after t that lies in the window.
// ok is false if the window is empty.
func (w Window) Next(t time.Time) (time.Time, bool) {
	if len(w.Weekdays) == 0 || len(w.Hours) == 0 {
		return time.Time{}, false
	}
	t = t.In(w.loc())
	if w.Contains(t) {
		return t, true
	}
	c := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	for i := 0; i < 8*24; i++ {
		c = c.Add(time.Hour)
		if w.Contains(c) {
			return c, true
		}
	}
	return time.Time{}, false
}

func (w Window) String() string {
	days := make([]string, 0, len(w.Weekdays))
	for _, d := range w.Weekdays {
		days = append(days, d.String()[:3])
	}
	return fmt.Sprintf("%s %s (%s)", strings.Join(days, ","), hourRanges(w.Hours), w.loc())
}

// hourRanges renders sorted hours as "9-17" style ranges.
func hourRanges(hours []int) string {
	hs := slices.Clone(hours)
	slices.Sort(hs)
	hs = slices.Compact(hs)
	var parts []string
	for i := 0; i < len(hs); {
		j := i
		for j+1 < len(hs) && hs[j+1] == hs[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(hs[i]))
		} else {
			parts = append(parts, strconv.Itoa(hs[i])+"-"+strconv.Itoa(hs[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// ParseWeekday accepts English names and abbreviations ("mon", "Monday").
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
