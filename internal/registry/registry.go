// Package registry guarantees one live poller per session and relays poller
// events to notification delivery.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/poller"
	rtsup "roomwatch/internal/runtime/supervisor"
	"roomwatch/internal/session"
	"roomwatch/internal/transport"
)

// Notifier delivers user-visible text for a session.
type Notifier interface {
	Notify(ctx context.Context, to transport.ChatTarget, text string) error
}

type entry struct {
	p      *poller.Poller
	target transport.ChatTarget
}

// Registry is the process-wide directory of pollers. Entries are never
// evicted; session cardinality is bounded by the number of chats talking to
// the bot.
type Registry struct {
	src poller.CountSource
	not Notifier
	sup *rtsup.Supervisor
	log logx.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func New(src poller.CountSource, not Notifier, sup *rtsup.Supervisor, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		src:     src,
		not:     not,
		sup:     sup,
		log:     log,
		entries: map[string]*entry{},
	}
}

// SessionID derives the registry key for a chat target. Thread-scoped chats
// get their own session.
func SessionID(to transport.ChatTarget) string {
	id := strconv.FormatInt(to.ChatID, 10)
	if to.ThreadID != 0 {
		id += "_" + strconv.Itoa(to.ThreadID)
	}
	return id
}

// ParseSessionID is the inverse of SessionID, used during boot restore.
func ParseSessionID(id string) (transport.ChatTarget, error) {
	chatPart, threadPart, hasThread := strings.Cut(id, "_")
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return transport.ChatTarget{}, fmt.Errorf("bad session id %q: %v", id, err)
	}
	t := transport.ChatTarget{ChatID: chatID}
	if hasThread {
		t.ThreadID, err = strconv.Atoi(threadPart)
		if err != nil {
			return transport.ChatTarget{}, fmt.Errorf("bad session id %q: %v", id, err)
		}
	}
	return t, nil
}

// GetOrCreate returns the single poller for id, creating and wiring it on
// first sight. Concurrent callers for the same id always get the same
// instance; a later call with a fresh handle rebinds the existing poller
// instead of spawning a rival.
func (r *Registry) GetOrCreate(id string, target transport.ChatTarget, h *session.Handle) *poller.Poller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.p.Rebind(h)
		return e.p
	}

	p := poller.New(id, h, r.src, r.sup, r.log)
	r.entries[id] = &entry{p: p, target: target}
	r.sup.Go0("relay."+id, func(ctx context.Context) {
		r.relay(ctx, p, target)
	})
	r.log.Debug("poller registered", logx.String("session", id))
	return p
}

// Get returns the poller for id, or nil.
func (r *Registry) Get(id string) *poller.Poller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.p
	}
	return nil
}

// Len reports how many sessions are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// relay turns poller events into user-visible messages. It is the only
// consumer of the poller's event channel.
func (r *Registry) relay(ctx context.Context, p *poller.Poller, target transport.ChatTarget) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.Events():
			switch ev.Kind {
			case poller.EventCount:
				if ev.Count.RoomsCount == 0 && !p.Handle().Options().AllowZero {
					r.log.Debug("zero count suppressed", logx.String("session", ev.Session))
					continue
				}
				text := fmt.Sprintf("%d rooms have new messages", ev.Count.RoomsCount)
				if err := r.not.Notify(ctx, target, text); err != nil {
					r.log.Warn("count notice delivery failed",
						logx.String("session", ev.Session), logx.Err(err))
				}
			case poller.EventError:
				// Stop without committing so the session resumes after a
				// restart; the operator gets one formatted notice.
				p.Stop(ctx, false)
				if err := r.not.Notify(ctx, target, ev.Err.Error()); err != nil {
					r.log.Warn("error notice delivery failed",
						logx.String("session", ev.Session), logx.Err(err))
				}
			case poller.EventStarted:
				if ev.Resumed {
					_ = r.not.Notify(ctx, target, "restarted, resuming polling")
				}
				r.log.Info("poller started",
					logx.String("session", ev.Session), logx.String("run", ev.RunID))
			case poller.EventStopped:
				r.log.Info("poller stopped",
					logx.String("session", ev.Session), logx.String("run", ev.RunID))
			}
		}
	}
}

// StopAll halts every running poller without committing, preserving resume
// intent for the next boot.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	pollers := make([]*poller.Poller, 0, len(r.entries))
	for _, e := range r.entries {
		pollers = append(pollers, e.p)
	}
	r.mu.Unlock()
	for _, p := range pollers {
		if p.Running() {
			p.Stop(ctx, false)
		}
	}
}
