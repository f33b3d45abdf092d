package poller

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// A Schedule decides when the next poll happens. Sessions normally poll on a
// fixed interval; an optional schedule string switches a session to cron
// timing so polls can be confined to, say, working hours.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "55 9-18 * * 1-5", "@hourly", "@every 55m"
//   - Duration: "55m", "2h30m"
//   - HH:MM as a duration: "00:50" (50 minutes), "02:30" (2.5 hours)
type Schedule struct {
	cron  cron.Schedule
	every time.Duration
}

var (
	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	reHHMM     = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
)

// FixedSchedule polls every d.
func FixedSchedule(d time.Duration) Schedule {
	return Schedule{every: d}
}

// ParseSchedule parses a schedule string. Empty input is an error; callers
// fall back to the session interval themselves.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	// whitespace or '@' means cron
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		sched, err := cronParser.Parse(s)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid cron schedule %q: %v", raw, err)
		}
		return Schedule{cron: sched}, nil
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		var hh int
		for i := 0; i < len(m[1]); i++ {
			hh = hh*10 + int(m[1][i]-'0')
		}
		mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Schedule{every: d}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')", raw)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{every: d}, nil
}

// NextDelay returns how long to wait after now before the next poll.
func (s Schedule) NextDelay(now time.Time) time.Duration {
	if s.cron != nil {
		d := s.cron.Next(now).Sub(now)
		if d < 0 {
			d = 0
		}
		return d
	}
	return s.every
}

// IsZero reports an unparsed schedule.
func (s Schedule) IsZero() bool {
	return s.cron == nil && s.every == 0
}
