package app

import (
	"fmt"
	"strings"
	"time"

	"stockbot/internal/config"
	"stockbot/internal/session"
	"stockbot/internal/storage"
	"stockbot/internal/transport/telegram"
)

func storageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.Duration("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func telegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:        cfg.Telegram.Token,
		PollTimeout:  poll,
		AllowedChats: cfg.Telegram.ChatIDs,
	}, nil
}

func sessionDefaults(cfg *config.Config) (session.Defaults, error) {
	iv, err := cfg.SchedulerInterval()
	if err != nil {
		return session.Defaults{}, err
	}
	return session.Defaults{SchedulerEnabled: cfg.Scheduler.Enabled, Interval: iv}, nil
}
