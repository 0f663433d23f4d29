package config

import (
	"reflect"

	logx "stockbot/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ and safe log
// fields describing them. Secrets such as the bot token are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		fields  []logx.Field
	)
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Int("telegram.chat_count", len(newCfg.Telegram.ChatIDs)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields, logx.String("logging.level", newCfg.Logging.Level))
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.interval", newCfg.Scheduler.Interval),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
	}
	if oldCfg.Providers != newCfg.Providers {
		changed = append(changed, "providers")
		fields = append(fields, logx.String("providers.default", newCfg.Providers.Default))
	}
	return changed, fields
}

// RequiresRestart reports sections that only take effect after a restart.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "http":
			out = append(out, s)
		}
	}
	return out
}
