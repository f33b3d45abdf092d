package router

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"roomwatch/internal/poller"
)

func (r *Router) registerAll() {
	r.register("start", "show intro", "/start", r.cmdHelp)
	r.register("help", "show available commands", "/help", r.cmdHelp)
	r.register("token", "set the access token", "/token <value>", r.cmdToken)
	r.register("referer", "set the workspace URL", "/referer <url>", r.cmdReferer)
	r.register("interval", "set the poll interval", "/interval <duration|ms>", r.cmdInterval)
	r.register("schedule", "poll on a cron schedule", "/schedule <spec>|off", r.cmdSchedule)
	r.register("allow", "notify on zero counts", "/allow <on|off>", r.cmdAllow)
	r.register("check", "fetch the count once", "/check", r.cmdCheck)
	r.register("poll", "start background polling", "/poll [force]", r.cmdPoll)
	r.register("stop", "stop background polling", "/stop", r.cmdStop)
	r.register("settings", "show session settings", "/settings", r.cmdSettings)
	r.register("clear", "reset session to defaults", "/clear", r.cmdClear)
}

func (r *Router) cmdToken(ctx context.Context, req *Request) (string, error) {
	if len(req.Args) != 1 {
		return "", validationf("usage: /token <value>")
	}
	req.Handle.SetToken(ctx, req.Args[0])
	return "token saved", nil
}

func (r *Router) cmdReferer(ctx context.Context, req *Request) (string, error) {
	if len(req.Args) != 1 {
		return "", validationf("usage: /referer <url>")
	}
	raw := req.Args[0]
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", validationf("referer must be an http(s) URL")
	}
	req.Handle.SetReferer(ctx, raw)
	return "referer saved", nil
}

func (r *Router) cmdInterval(ctx context.Context, req *Request) (string, error) {
	if len(req.Args) != 1 {
		return "", validationf("usage: /interval <duration|ms> (e.g. 90s or 90000)")
	}
	raw := req.Args[0]

	var d time.Duration
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		d = time.Duration(ms) * time.Millisecond
	} else if d, err = time.ParseDuration(raw); err != nil {
		return "", validationf("invalid interval " + strconv.Quote(raw))
	}
	if d < time.Second {
		return "", validationf("interval must be at least 1s")
	}
	req.Handle.SetInterval(ctx, d.Milliseconds())
	return "interval set to " + d.String(), nil
}

func (r *Router) cmdSchedule(ctx context.Context, req *Request) (string, error) {
	if len(req.Args) == 0 {
		return "", validationf("usage: /schedule <cron|duration>|off")
	}
	raw := strings.Join(req.Args, " ")
	if strings.EqualFold(raw, "off") {
		req.Handle.SetSchedule(ctx, "")
		return "schedule cleared, using the interval", nil
	}
	if _, err := poller.ParseSchedule(raw); err != nil {
		return "", validationf(err.Error())
	}
	req.Handle.SetSchedule(ctx, raw)
	return "schedule set to " + strconv.Quote(raw), nil
}

func (r *Router) cmdAllow(ctx context.Context, req *Request) (string, error) {
	if len(req.Args) != 1 {
		return "", validationf("usage: /allow <on|off>")
	}
	v, err := parseOnOff(req.Args[0])
	if err != nil {
		return "", err
	}
	req.Handle.SetAllowZero(ctx, v)
	if v {
		return "zero counts will be notified", nil
	}
	return "zero counts will be suppressed", nil
}

func (r *Router) cmdCheck(ctx context.Context, req *Request) (string, error) {
	cnt, err := req.Poller.CheckNow(ctx)
	if err != nil {
		return "", err
	}
	// on-demand checks always show the result, even zero
	return fmt.Sprintf("%d rooms have new messages", cnt.RoomsCount), nil
}

func (r *Router) cmdPoll(ctx context.Context, req *Request) (string, error) {
	force := len(req.Args) == 1 && strings.EqualFold(req.Args[0], "force")
	if !req.Handle.Options().Configured() {
		return "", validationf("set /token and /referer first")
	}
	if !req.Poller.Start(ctx, force, false) {
		return "already polling, use /poll force to restart", nil
	}
	return "polling started (every " + req.Handle.Options().Interval().String() + ")", nil
}

func (r *Router) cmdStop(ctx context.Context, req *Request) (string, error) {
	req.Poller.Stop(ctx, true)
	return "polling stopped", nil
}

func (r *Router) cmdSettings(ctx context.Context, req *Request) (string, error) {
	st := req.Handle.Snapshot()
	o := st.Options

	var b strings.Builder
	fmt.Fprintf(&b, "session %s\n", req.Session)
	fmt.Fprintf(&b, "token: %s\n", maskToken(o.AuthToken))
	fmt.Fprintf(&b, "referer: %s\n", valueOr(o.Referer, "(unset)"))
	fmt.Fprintf(&b, "interval: %s\n", o.Interval())
	fmt.Fprintf(&b, "schedule: %s\n", valueOr(o.Schedule, "(interval)"))
	fmt.Fprintf(&b, "allow zero: %v\n", o.AllowZero)
	fmt.Fprintf(&b, "polling: %v (resume on boot: %v)\n", req.Poller.Running(), o.ResumeOnBoot)
	fmt.Fprintf(&b, "last count: %d", st.LastCount.RoomsCount)
	return b.String(), nil
}

func (r *Router) cmdClear(ctx context.Context, req *Request) (string, error) {
	req.Poller.Stop(ctx, true)
	req.Handle.Reset(ctx)
	return "session reset to defaults", nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) (string, error) {
	var b strings.Builder
	b.WriteString("I watch your workspace chat and ping you when rooms get new messages.\n\n")
	for _, name := range r.order {
		c := r.commands[name]
		if name == "start" {
			continue
		}
		fmt.Fprintf(&b, "%s - %s\n", c.usage, c.description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, validationf("expected on or off, got " + strconv.Quote(s))
	}
}

func maskToken(tok string) string {
	if tok == "" {
		return "(unset)"
	}
	if len(tok) <= 8 {
		return "***"
	}
	return tok[:4] + "..." + tok[len(tok)-4:]
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
