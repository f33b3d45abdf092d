// Package notify delivers operator-facing messages through the chat adapter.
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/transport"
)

type Config struct {
	// RatePerSec caps outbound messages. Telegram throttles bots hard, so
	// keep this low. Zero means the default.
	RatePerSec int
}

// Service sends text notifications with a shared token-bucket limiter so a
// burst of session events cannot trip the chat API's flood control.
type Service struct {
	adapter transport.Adapter
	log     logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	s.mu.Lock()
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Notify sends text to the target, waiting on the limiter up to ctx's
// deadline (bounded at 30s so a stuck limiter never wedges a caller).
func (s *Service) Notify(ctx context.Context, to transport.ChatTarget, text string) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := lim.Wait(wctx); err != nil {
		s.log.Warn("notification rate wait failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return err
	}

	err := s.adapter.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		s.log.Warn("notification send failed",
			logx.Int64("chat_id", to.ChatID), logx.Int("thread_id", to.ThreadID), logx.Err(err))
		return err
	}
	s.log.Debug("notification sent", logx.Int64("chat_id", to.ChatID))
	return nil
}
