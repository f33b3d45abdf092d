package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/transport"
)

// telegramSink mirrors warn+ log lines into an operator chat. It drops on
// the floor rather than blocking: logging must never stall the app, and the
// chat API must never see a flood.
type telegramSink struct {
	adapter transport.Adapter

	mu      sync.Mutex
	enabled bool
	min     zerolog.Level
	target  transport.ChatTarget
	lim     *rate.Limiter
}

func newTelegramSink(adapter transport.Adapter) *telegramSink {
	return &telegramSink{
		adapter: adapter,
		min:     zerolog.WarnLevel,
		lim:     rate.NewLimiter(rate.Limit(1), 3),
	}
}

func (s *telegramSink) Apply(enabled bool, minLevel string, target transport.ChatTarget, perSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled && target.ChatID != 0
	s.min = logx.ParseLevel(minLevel, zerolog.WarnLevel)
	s.target = target
	if perSec <= 0 {
		perSec = 1
	}
	s.lim = rate.NewLimiter(rate.Limit(perSec), 3)
}

func (s *telegramSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.InfoLevel, p)
}

func (s *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s.mu.Lock()
	enabled, min, target, lim := s.enabled, s.min, s.target, s.lim
	s.mu.Unlock()

	if !enabled || level < min || !lim.Allow() {
		return len(p), nil
	}

	text := renderLogLine(level, p)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.adapter.SendText(ctx, target, text, &transport.SendOptions{DisablePreview: true})
	}()
	return len(p), nil
}

// renderLogLine flattens a JSON log event into one chat-friendly line.
func renderLogLine(level zerolog.Level, p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return strings.TrimSpace(string(p))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", strings.ToUpper(level.String()))
	if msg, ok := m[zerolog.MessageFieldName].(string); ok {
		b.WriteString(" " + msg)
	}
	for k, v := range m {
		switch k {
		case zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.TimestampFieldName:
			continue
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}
