package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "abc", "poll_timeout": "10s"},
		"logging": {"level": "debug", "console": true},
		"ktalk": {"base_url": "https://talk.example.com"},
		"storage": {"driver": "file", "path": "/var/lib/roomwatch"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "abc" || cfg.Logging.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.KTalk.BaseURL != "https://talk.example.com" {
		t.Fatalf("ktalk = %+v", cfg.KTalk)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: abc
  poll_timeout: 10s
poller:
  default_interval: 90s
storage:
  driver: sqlite
  path: ./roomwatch.db
  busy_timeout: 5s
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "abc" || cfg.Poller.DefaultInterval != "90s" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x", "tokne_typo": true}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseTokenFromEnv(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": ""}}`)
	t.Setenv(EnvTelegramToken, "env-token")
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestLoadCommitGet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}}`)
	m := NewManager(path)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestSubscribePublishDropOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b) // buffer full: a is dropped, b delivered

	select {
	case got := <-ch:
		if got != b {
			t.Fatal("expected the newest config")
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()

	var cfg Config
	durs, err := cfg.Durations()
	if err != nil {
		t.Fatal(err)
	}
	if durs.PollTimeout != 10*time.Second || durs.RequestTimeout != 15*time.Second {
		t.Fatalf("defaults: %+v", durs)
	}
	if durs.DefaultInterval != 0 || durs.BusyTimeout != 0 {
		t.Fatalf("unset fields must stay zero: %+v", durs)
	}

	cfg.Telegram.PollTimeout = " 30s "
	cfg.KTalk.RequestTimeout = "500ms"
	cfg.Poller.DefaultInterval = "2m"
	durs, err = cfg.Durations()
	if err != nil {
		t.Fatal(err)
	}
	if durs.PollTimeout != 30*time.Second || durs.RequestTimeout != 500*time.Millisecond || durs.DefaultInterval != 2*time.Minute {
		t.Fatalf("parsed: %+v", durs)
	}

	bad := []struct {
		set  func(*Config)
		want string
	}{
		{func(c *Config) { c.Telegram.PollTimeout = "soon" }, "telegram.poll_timeout"},
		{func(c *Config) { c.KTalk.RequestTimeout = "-5s" }, "ktalk.request_timeout"},
		{func(c *Config) { c.Storage.BusyTimeout = "5 parsecs" }, "storage.busy_timeout"},
	}
	for _, tc := range bad {
		var c Config
		tc.set(&c)
		_, err := c.Durations()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("want error naming %s, got %v", tc.want, err)
		}
	}
}
