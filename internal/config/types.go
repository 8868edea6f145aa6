package config

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls trigger behavior (cron evaluation and misfire policy).
	Scheduler SchedulerConfig `json:"scheduler"`

	// Executor controls how due jobs are actually called over HTTP.
	Executor ExecutorConfig `json:"executor"`

	Storage *StorageConfig `json:"storage,omitempty"`
}

// ServerConfig controls the HTTP control API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080") unless the service
//     sits behind a trusted proxy.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Per-client request rate limiting. Leave 0 to disable.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RateBurst  int `json:"rate_burst,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	// Timezone is the IANA location cron expressions are evaluated in.
	// Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	// GraceWindow bounds how late a missed fire may still run after a restart.
	// Fires missed by more than this are skipped and rescheduled forward.
	// Default: "60s".
	GraceWindow string `json:"grace_window,omitempty"`
}

// ExecutorConfig controls outbound job execution.
//
// Defaults (when fields are omitted/zero):
//   - request_timeout: "10s"
//   - max_in_flight: 16
type ExecutorConfig struct {
	// RequestTimeout is a Go duration string bounding each outbound call.
	RequestTimeout string `json:"request_timeout,omitempty"`

	// MaxInFlight caps concurrent outbound calls across all jobs.
	MaxInFlight int `json:"max_in_flight,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./crontask.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
