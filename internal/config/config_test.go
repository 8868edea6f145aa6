package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
server:
  enabled: true
  addr: "127.0.0.1:8080"
  rate_per_sec: 10
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
scheduler:
  timezone: "Asia/Jakarta"
  grace_window: "90s"
executor:
  request_timeout: "5s"
  max_in_flight: 8
storage:
  driver: sqlite
  path: ./crontask.db
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Server.Enabled || cfg.Server.Addr != "127.0.0.1:8080" || cfg.Server.RatePerSec != 10 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Scheduler.Timezone != "Asia/Jakarta" || cfg.Scheduler.GraceWindow != "90s" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Executor.RequestTimeout != "5s" || cfg.Executor.MaxInFlight != 8 {
		t.Fatalf("executor = %+v", cfg.Executor)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseJSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{
  "server": {"enabled": true, "addr": ":9090"},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "scheduler": {},
  "executor": {}
}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage != nil {
		t.Fatalf("storage should be nil when omitted, got %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
server:
  enabled: true
  adress: ":8080"
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
scheduler: {}
executor: {}
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{"server":{},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"scheduler":{},"executor":{}}{"extra":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data, got nil")
	}
}

func TestParseDurationField(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"90s", 90 * time.Second, false},
		{"2h30m", 2*time.Hour + 30*time.Minute, false},
		{"-5s", 0, true},
		{"nonsense", 0, true},
	}
	for _, tc := range cases {
		d, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationField(%q): %v", tc.raw, err)
		}
		if d != tc.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tc.raw, d, tc.want)
		}
	}

	if d, err := ParseDurationOrDefault("test.field", "", 10*time.Second); err != nil || d != 10*time.Second {
		t.Fatalf("ParseDurationOrDefault default: d=%v err=%v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{GraceWindow: "60s"},
	}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "debug", Console: true},
		Scheduler: SchedulerConfig{GraceWindow: "60s"},
		Storage:   &StorageConfig{Driver: "sqlite", Path: "a.db"},
	}
	sections, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"logging": true, "storage": true}
	if len(sections) != len(want) {
		t.Fatalf("sections = %v", sections)
	}
	for _, s := range sections {
		if !want[s] {
			t.Fatalf("unexpected section %q in %v", s, sections)
		}
	}

	if sections, _ := SummarizeConfigChange(newCfg, newCfg); len(sections) != 0 {
		t.Fatalf("no-op diff produced %v", sections)
	}
}
