// Package poller runs the per-session fetch loop and reports what it sees.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "roomwatch/pkg/logx"

	rtsup "roomwatch/internal/runtime/supervisor"
	"roomwatch/internal/session"
)

// CountSource fetches the unread summary for one set of credentials.
// *ktalk.Client satisfies it.
type CountSource interface {
	GetCount(ctx context.Context, token, referer string) (session.Count, error)
}

// Poller is the single fetch loop for one session. It moves between idle and
// polling; observers consume its event channel rather than polling its state.
type Poller struct {
	id  string
	src CountSource
	sup *rtsup.Supervisor
	log logx.Logger

	events chan Event

	hmu sync.RWMutex
	h   *session.Handle

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	runID   string
}

const eventBuffer = 16

func New(id string, h *session.Handle, src CountSource, sup *rtsup.Supervisor, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		id:     id,
		src:    src,
		sup:    sup,
		log:    log.With(logx.String("session", id)),
		h:      h,
		events: make(chan Event, eventBuffer),
	}
}

func (p *Poller) ID() string { return p.id }

// Events is the poller's outbound channel. One consumer per poller.
func (p *Poller) Events() <-chan Event { return p.events }

// Handle returns the currently bound state handle.
func (p *Poller) Handle() *session.Handle {
	p.hmu.RLock()
	defer p.hmu.RUnlock()
	return p.h
}

// Rebind swaps the state handle without disturbing a running loop. The next
// loop iteration reads through the new handle.
func (p *Poller) Rebind(h *session.Handle) {
	p.hmu.Lock()
	p.h = h
	p.hmu.Unlock()
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start launches the fetch loop. A second Start on a running poller is a
// logged no-op unless force is set, which restarts the loop fresh. The
// resumed flag only decorates the started event so observers can tell a boot
// restore from an operator start.
func (p *Poller) Start(ctx context.Context, force, resumed bool) bool {
	p.mu.Lock()
	if p.running && !force {
		p.mu.Unlock()
		p.log.Warn("start ignored: already polling")
		return false
	}
	if p.cancel != nil {
		p.cancel()
	}
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(p.sup.Context())
	p.running = true
	p.cancel = cancel
	p.runID = runID
	p.mu.Unlock()

	h := p.Handle()
	h.SetPolling(ctx, true)
	h.SetResumeOnBoot(ctx, true)

	p.emit(Event{Kind: EventStarted, Resumed: resumed, RunID: runID})
	p.log.Info("polling started", logx.String("run", runID), logx.Bool("resumed", resumed))

	p.sup.Go0("poll."+p.id, func(context.Context) { p.loop(runCtx, runID) })
	return true
}

// Stop halts the loop. With commit the session also drops its boot resume
// claim; without it a later restart brings the poller back. Safe to call on
// an idle poller.
func (p *Poller) Stop(ctx context.Context, commit bool) {
	p.mu.Lock()
	cancel := p.cancel
	wasRunning := p.running
	runID := p.runID
	p.cancel = nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.Handle().MarkStopped(ctx, commit)
	if wasRunning {
		p.emit(Event{Kind: EventStopped, RunID: runID})
		p.log.Info("polling stopped", logx.String("run", runID), logx.Bool("commit", commit))
	}
}

// CheckNow performs a one-off fetch with the session's current credentials.
// It never touches persisted state.
func (p *Poller) CheckNow(ctx context.Context) (session.Count, error) {
	opts := p.Handle().Options()
	return p.src.GetCount(ctx, opts.AuthToken, opts.Referer)
}

func (p *Poller) loop(ctx context.Context, runID string) {
	for {
		h := p.Handle()
		opts := h.Options()
		if !opts.Polling {
			// stopped out from under us (cooperative)
			return
		}

		cnt, err := p.src.GetCount(ctx, opts.AuthToken, opts.Referer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.emit(Event{Kind: EventError, Err: err, RunID: runID})
			return
		}

		last := h.LastCount()
		h.SetCount(ctx, cnt)
		if cnt.RoomsCount != last.RoomsCount {
			p.emit(Event{Kind: EventCount, Count: cnt, RunID: runID})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.nextDelay(opts)):
		}
	}
}

func (p *Poller) nextDelay(opts session.Options) time.Duration {
	if opts.Schedule != "" {
		sched, err := ParseSchedule(opts.Schedule)
		if err == nil {
			return sched.NextDelay(time.Now())
		}
		p.log.Warn("bad schedule, falling back to interval",
			logx.String("schedule", opts.Schedule), logx.Err(err))
	}
	return opts.Interval()
}

// emit delivers the event; a slow consumer loses its oldest pending event
// rather than blocking the loop.
func (p *Poller) emit(ev Event) {
	ev.Session = p.id
	select {
	case p.events <- ev:
		return
	default:
	}
	select {
	case <-p.events:
	default:
	}
	select {
	case p.events <- ev:
	default:
		p.log.Warn("event dropped", logx.String("kind", ev.Kind.String()))
	}
}
