package config

// Config is the whole bot configuration. Every field has a documented default
// (see Defaults); unknown keys in the file are rejected.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
	Providers ProvidersConfig `json:"providers"`
}

// TelegramConfig enables the Telegram transport when Token is set.
//
// ChatIDs lists the chats the bot answers in and creates sessions for at
// startup. An empty list accepts every chat.
type TelegramConfig struct {
	Token        string  `json:"token"`
	ChatIDs      []int64 `json:"chat_ids,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// PollTimeout is a Go duration string (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// LogChatID receives forwarded log records when logging.chat.enabled is set.
	LogChatID   int64 `json:"log_chat_id,omitempty"`
	LogThreadID int   `json:"log_thread_id,omitempty"`
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" }

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
	Chat    LoggingChatConfig `json:"chat"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingChatConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SchedulerConfig seeds the scheduler state of new sessions and configures
// the shared tick source and active window.
//
// Defaults:
//   - enabled: false
//   - interval: "1h" (at least "1s")
//   - tick: "@every 1m" (cron, "1m" or "00:01")
//   - timezone: "" (process local time)
//   - weekdays: mon..fri
//   - hours: 9..17
type SchedulerConfig struct {
	Enabled  bool     `json:"enabled"`
	Interval string   `json:"interval,omitempty"`
	Tick     string   `json:"tick,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
	Weekdays []string `json:"weekdays,omitempty"`
	Hours    []int    `json:"hours,omitempty"`
}

// StorageConfig selects the persistence driver: "memory" (default), "file"
// or "sqlite".
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HTTPConfig enables the JSON control API.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Token, when set, is required as a bearer token on /v1 routes.
	Token string `json:"token,omitempty"`
}

type ProvidersConfig struct {
	// Default is used by the "quick" command.
	Default string `json:"default"`
}

// Defaults returns a fully populated config.
func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFileConfig{Path: "./stockbot.log"},
			Chat:    LoggingChatConfig{MinLevel: "warn", RatePerSec: 1},
		},
		Scheduler: SchedulerConfig{
			Interval: "1h",
			Tick:     "@every 1m",
			Weekdays: []string{"mon", "tue", "wed", "thu", "fri"},
			Hours:    []int{9, 10, 11, 12, 13, 14, 15, 16, 17},
		},
		Storage:   StorageConfig{Driver: "memory"},
		HTTP:      HTTPConfig{Addr: "127.0.0.1:8080"},
		Providers: ProvidersConfig{Default: "avanza"},
	}
}
