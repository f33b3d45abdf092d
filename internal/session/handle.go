package session

import (
	"context"
	"sync"
	"time"

	logx "roomwatch/pkg/logx"
)

// PersistFunc writes the encoded state for a session id.
type PersistFunc func(ctx context.Context, id string, blob []byte) error

// Handle owns the in-memory state of one session and writes every mutation
// through to storage before returning. A persist failure is logged and the
// in-memory change kept, so the bot stays usable when the disk is sick; the
// next successful write repairs the record.
type Handle struct {
	id  string
	log logx.Logger

	persist PersistFunc

	mu    sync.Mutex
	state State
}

func NewHandle(id string, st State, persist PersistFunc, log logx.Logger) *Handle {
	if log.IsZero() {
		log = logx.Nop()
	}
	if st.Version == 0 {
		st.Version = SchemaVersion
	}
	return &Handle{id: id, log: log, persist: persist, state: st}
}

func (h *Handle) ID() string { return h.id }

// Snapshot returns a copy of the current state.
func (h *Handle) Snapshot() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Options() Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Options
}

func (h *Handle) LastCount() Count {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.LastCount
}

// mutate applies fn under the lock and writes the result through.
func (h *Handle) mutate(ctx context.Context, fn func(*State)) {
	h.mu.Lock()
	fn(&h.state)
	st := h.state
	h.mu.Unlock()

	if h.persist == nil {
		return
	}
	blob, err := st.Encode()
	if err != nil {
		h.log.Error("session state encode failed", logx.String("session", h.id), logx.Err(err))
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.persist(pctx, h.id, blob); err != nil {
		h.log.Warn("session state persist failed", logx.String("session", h.id), logx.Err(err))
	}
}

func (h *Handle) SetToken(ctx context.Context, token string) {
	h.mutate(ctx, func(s *State) { s.Options.AuthToken = token })
}

func (h *Handle) SetReferer(ctx context.Context, referer string) {
	h.mutate(ctx, func(s *State) { s.Options.Referer = referer })
}

func (h *Handle) SetAllowZero(ctx context.Context, allow bool) {
	h.mutate(ctx, func(s *State) { s.Options.AllowZero = allow })
}

func (h *Handle) SetInterval(ctx context.Context, ms int64) {
	h.mutate(ctx, func(s *State) { s.Options.IntervalMS = ms })
}

func (h *Handle) SetSchedule(ctx context.Context, spec string) {
	h.mutate(ctx, func(s *State) { s.Options.Schedule = spec })
}

func (h *Handle) SetCount(ctx context.Context, c Count) {
	h.mutate(ctx, func(s *State) { s.LastCount = c })
}

func (h *Handle) SetPolling(ctx context.Context, on bool) {
	h.mutate(ctx, func(s *State) { s.Options.Polling = on })
}

func (h *Handle) SetResumeOnBoot(ctx context.Context, on bool) {
	h.mutate(ctx, func(s *State) { s.Options.ResumeOnBoot = on })
}

// MarkStopped clears the live polling flag in one write. When commit is true
// the session also gives up its boot resume claim.
func (h *Handle) MarkStopped(ctx context.Context, commit bool) {
	h.mutate(ctx, func(s *State) {
		s.Options.Polling = false
		if commit {
			s.Options.ResumeOnBoot = false
		}
	})
}

// Reset drops all options and counters back to defaults.
func (h *Handle) Reset(ctx context.Context) {
	h.mutate(ctx, func(s *State) { *s = NewState() })
}
