package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"stockbot/internal/scheduler"
	logx "stockbot/pkg/logx"
)

// Validate checks the whole config, including that at least one chat
// transport is configured.
func (c *Config) Validate() error {
	err := c.ValidateOffline()
	if !c.Telegram.Enabled() && !c.HTTP.Enabled {
		err = errors.Join(err, errors.New("no transport: set telegram.token or http.enabled"))
	}
	return err
}

// ValidateOffline checks everything except transports (used by one-shot CLI
// commands).
func (c *Config) ValidateOffline() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := Duration("telegram.poll_timeout", c.Telegram.PollTimeout, 0); err != nil {
		add(err)
	}

	if !logx.ValidLevel(c.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if !logx.ValidLevel(c.Logging.Chat.MinLevel) {
		add(fmt.Errorf("logging.chat.min_level: unknown level %q", c.Logging.Chat.MinLevel))
	}
	if c.Logging.Chat.RatePerSec < 0 {
		add(errors.New("logging.chat.rate_per_sec must be >= 0"))
	}
	if c.Logging.Chat.Enabled && c.Telegram.LogChatID == 0 {
		add(errors.New("logging.chat.enabled requires telegram.log_chat_id"))
	}

	if _, err := c.SchedulerInterval(); err != nil {
		add(err)
	}
	if _, err := scheduler.ParseTick(c.Scheduler.Tick); err != nil {
		add(fmt.Errorf("scheduler.tick: %w", err))
	}
	if _, err := c.SchedulerWindow(); err != nil {
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add(fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := Duration("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
		add(err)
	}

	if c.HTTP.Enabled {
		switch {
		case strings.TrimSpace(c.HTTP.Addr) == "":
			add(errors.New("http.addr is required when http.enabled"))
		case c.HTTP.Token == "" && !loopback(c.HTTP.Addr):
			// every posted session id creates a live session
			add(fmt.Errorf("http.token is required when http.addr %q is not a loopback address", c.HTTP.Addr))
		}
	}
	if strings.TrimSpace(c.Providers.Default) == "" {
		add(errors.New("providers.default is required"))
	}
	return errors.Join(errs...)
}

// Duration parses the config value at path. Blank or zero yields def.
func Duration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration like 30s or 5m", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %s is negative", path, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}

func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// SchedulerInterval is the default re-fire interval for new sessions.
func (c *Config) SchedulerInterval() (time.Duration, error) {
	d, err := Duration("scheduler.interval", c.Scheduler.Interval, time.Hour)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, fmt.Errorf("scheduler.interval must be at least 1s, got %s", d)
	}
	return d, nil
}

// SchedulerWindow builds the active window (weekdays, hours, timezone).
func (c *Config) SchedulerWindow() (scheduler.Window, error) {
	w := scheduler.Window{}
	for _, raw := range c.Scheduler.Weekdays {
		d, err := scheduler.ParseWeekday(raw)
		if err != nil {
			return w, fmt.Errorf("scheduler.weekdays: %w", err)
		}
		w.Weekdays = append(w.Weekdays, d)
	}
	for _, h := range c.Scheduler.Hours {
		if h < 0 || h > 23 {
			return w, fmt.Errorf("scheduler.hours: %d is outside 0..23", h)
		}
		w.Hours = append(w.Hours, h)
	}
	if len(w.Weekdays) == 0 || len(w.Hours) == 0 {
		return w, errors.New("scheduler: weekdays and hours must not be empty")
	}
	loc, err := c.Location()
	if err != nil {
		return w, err
	}
	w.Location = loc
	return w, nil
}

// Location resolves scheduler.timezone ("" means local time).
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    c.Logging.Chat.Enabled,
			MinLevel:   c.Logging.Chat.MinLevel,
			RatePerSec: c.Logging.Chat.RatePerSec,
		},
	}
}
