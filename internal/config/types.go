package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	KTalk    KTalkConfig    `json:"ktalk"`
	Poller   PollerConfig   `json:"poller"`
	Notify   NotifyConfig   `json:"notify"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// OwnerUserIDs restricts commands to the listed users. Empty means open.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// Telegram mirrors warnings and errors into a chat.
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// KTalkConfig points the pollers at the workspace notification endpoint.
//
// Per-session credentials (token/referer) live in session state, not here;
// this block only carries what is common to the whole deployment.
type KTalkConfig struct {
	BaseURL string `json:"base_url"`
	// CountPath defaults to "/api/notification-count".
	CountPath string `json:"count_path,omitempty"`
	// RequestTimeout is a Go duration string bounding one count request.
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// PollerConfig carries deployment-level poller defaults; sessions override
// them through chat commands.
type PollerConfig struct {
	// DefaultInterval is a Go duration string (default "60s").
	DefaultInterval string `json:"default_interval,omitempty"`
}

// NotifyConfig bounds outbound chat messages.
type NotifyConfig struct {
	// RatePerSec caps messages per second (default 3).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the session-state persistence layer.
//
// Driver values:
//   - "file": one JSON record per session under Path (default)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//   - "postgres": Postgres via DSN
//
// If Driver is empty or "none", state is kept in memory only.
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
