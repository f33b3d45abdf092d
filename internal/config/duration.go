package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations is the parsed form of every duration-string field in Config,
// with defaults applied where a field was left empty.
type Durations struct {
	PollTimeout     time.Duration
	RequestTimeout  time.Duration
	DefaultInterval time.Duration
	BusyTimeout     time.Duration
}

// Durations resolves the config's duration strings in one pass. A malformed
// or negative value fails with an error naming the offending field, so the
// same call serves both wiring and pre-commit validation.
func (c *Config) Durations() (Durations, error) {
	out := Durations{
		PollTimeout:    10 * time.Second,
		RequestTimeout: 15 * time.Second,
	}
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout, &out.PollTimeout},
		{"ktalk.request_timeout", c.KTalk.RequestTimeout, &out.RequestTimeout},
		{"poller.default_interval", c.Poller.DefaultInterval, &out.DefaultInterval},
		{"storage.busy_timeout", c.Storage.BusyTimeout, &out.BusyTimeout},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Durations{}, fmt.Errorf("%s: invalid duration %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return Durations{}, fmt.Errorf("%s: duration must be >= 0", f.name)
		}
		if d > 0 {
			*f.dst = d
		}
	}
	return out, nil
}
