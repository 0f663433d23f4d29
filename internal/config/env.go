package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOCKBOT_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	key   string
	apply func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"TELEGRAM_TOKEN", func(c *Config, v string) error { c.Telegram.Token = v; return nil }},
	{"TELEGRAM_CHAT_IDS", func(c *Config, v string) (err error) {
		c.Telegram.ChatIDs, err = parseInt64List(v)
		return err
	}},
	{"TELEGRAM_OWNER_IDS", func(c *Config, v string) (err error) {
		c.Telegram.OwnerUserIDs, err = parseInt64List(v)
		return err
	}},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"LOG_FILE", func(c *Config, v string) error {
		c.Logging.File.Path = v
		c.Logging.File.Enabled = v != ""
		return nil
	}},
	{"SCHEDULER", func(c *Config, v string) (err error) {
		c.Scheduler.Enabled, err = strconv.ParseBool(v)
		return err
	}},
	{"SCHEDULER_INTERVAL", func(c *Config, v string) error { c.Scheduler.Interval = v; return nil }},
	{"SCHEDULER_TIMEZONE", func(c *Config, v string) error { c.Scheduler.Timezone = v; return nil }},
	{"STORAGE_DRIVER", func(c *Config, v string) error { c.Storage.Driver = v; return nil }},
	{"STORAGE_PATH", func(c *Config, v string) error { c.Storage.Path = v; return nil }},
	{"HTTP_ENABLED", func(c *Config, v string) (err error) {
		c.HTTP.Enabled, err = strconv.ParseBool(v)
		return err
	}},
	{"HTTP_ADDR", func(c *Config, v string) error { c.HTTP.Addr = v; return nil }},
	{"HTTP_TOKEN", func(c *Config, v string) error { c.HTTP.Token = v; return nil }},
	{"DEFAULT_PROVIDER", func(c *Config, v string) error { c.Providers.Default = v; return nil }},
}

// ApplyEnv overrides cfg with STOCKBOT_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.apply(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}

func parseInt64List(v string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
