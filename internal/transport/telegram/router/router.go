// Package router turns chat messages into session commands.
package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/poller"
	"roomwatch/internal/registry"
	"roomwatch/internal/session"
	"roomwatch/internal/storage"
	"roomwatch/internal/transport"
)

// Notifier delivers replies. The notify service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, to transport.ChatTarget, text string) error
}

// ValidationError rejects a command argument. The session's configuration is
// left untouched when a handler returns one.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "ValidationError: " + e.Msg }

func validationf(msg string) error { return &ValidationError{Msg: msg} }

// Request carries one parsed command into a handler.
type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	Command string
	Args    []string

	Session string
	Poller  *poller.Poller
	Handle  *session.Handle
}

type HandlerFunc func(ctx context.Context, req *Request) (string, error)

type command struct {
	name        string
	description string
	usage       string
	handle      HandlerFunc
}

// Router owns the update loop: parse, resolve the session, run the handler,
// reply. One handler runs at a time per process; handlers are quick and the
// slow work (polling) lives in the pollers.
type Router struct {
	log   logx.Logger
	reg   *registry.Registry
	store storage.Store
	not   Notifier

	commands map[string]*command
	order    []string

	botName        string
	handlerTimeout time.Duration

	defaultMu         sync.Mutex
	defaultIntervalMS int64
	owners            []int64
}

func New(reg *registry.Registry, store storage.Store, not Notifier, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:            log,
		reg:            reg,
		store:          store,
		not:            not,
		commands:       map[string]*command{},
		handlerTimeout: 30 * time.Second,
	}
	r.registerAll()
	return r
}

// SetBotName lets "/cmd@botname" address this bot in group chats.
func (r *Router) SetBotName(name string) {
	r.botName = strings.TrimPrefix(strings.TrimSpace(name), "@")
}

// SetDefaultInterval seeds new sessions with a deployment-level poll
// interval. Zero keeps the built-in default.
func (r *Router) SetDefaultInterval(ms int64) {
	r.defaultMu.Lock()
	r.defaultIntervalMS = ms
	r.defaultMu.Unlock()
}

// SetOwners restricts commands to the listed user ids. An empty list leaves
// the bot open to everyone.
func (r *Router) SetOwners(owners []int64) {
	// copy to avoid external mutation
	ownCopy := append([]int64(nil), owners...)
	r.defaultMu.Lock()
	r.owners = ownCopy
	r.defaultMu.Unlock()
}

func (r *Router) allowed(fromID int64) bool {
	r.defaultMu.Lock()
	owners := r.owners
	r.defaultMu.Unlock()
	if len(owners) == 0 {
		return true
	}
	for _, id := range owners {
		if id == fromID {
			return true
		}
	}
	return false
}

func (r *Router) register(name, description, usage string, h HandlerFunc) {
	r.commands[name] = &command{name: name, description: description, usage: usage, handle: h}
	r.order = append(r.order, name)
}

// Run consumes updates until ctx is done.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			r.dispatch(ctx, u)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, u transport.Update) {
	if u.Message == nil {
		return
	}
	name, args, ok := r.parse(u.Message.Text)
	if !ok {
		return
	}
	chat := transport.ChatTarget{ChatID: u.Message.ChatID, ThreadID: u.Message.ThreadID}

	if !r.allowed(u.Message.FromID) {
		r.log.Warn("command from unauthorized user",
			logx.Int64("from_id", u.Message.FromID), logx.String("command", name))
		r.reply(ctx, chat, "unauthorized")
		return
	}

	cmd, ok := r.commands[name]
	if !ok {
		r.reply(ctx, chat, "unknown command /"+name+", try /help")
		return
	}

	id := registry.SessionID(chat)
	p, h, err := r.ensureSession(ctx, id, chat)
	if err != nil {
		r.log.Error("session materialization failed", logx.String("session", id), logx.Err(err))
		r.reply(ctx, chat, "StoreError: cannot load session state")
		return
	}

	req := &Request{
		Update:  u,
		Chat:    chat,
		Command: name,
		Args:    args,
		Session: id,
		Poller:  p,
		Handle:  h,
	}

	hctx, cancel := context.WithTimeout(ctx, r.handlerTimeout)
	text, err := cmd.handle(hctx, req)
	cancel()
	if err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			r.log.Warn("command failed",
				logx.String("command", name), logx.String("session", id), logx.Err(err))
		}
		r.reply(ctx, chat, err.Error())
		return
	}
	if text != "" {
		r.reply(ctx, chat, text)
	}
}

// parse splits "/cmd@bot arg arg" into its parts. Non-commands are ignored.
func (r *Router) parse(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	name := strings.ToLower(fields[0])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		if r.botName != "" && !strings.EqualFold(name[at+1:], r.botName) {
			// addressed to another bot in the group
			return "", nil, false
		}
		name = name[:at]
	}
	return name, fields[1:], true
}

// ensureSession returns the singleton poller and handle for a chat, creating
// persisted state on first contact.
func (r *Router) ensureSession(ctx context.Context, id string, chat transport.ChatTarget) (*poller.Poller, *session.Handle, error) {
	if p := r.reg.Get(id); p != nil {
		return p, p.Handle(), nil
	}

	st := session.NewState()
	r.defaultMu.Lock()
	st.Options.IntervalMS = r.defaultIntervalMS
	r.defaultMu.Unlock()
	if r.store != nil {
		blob, err := r.store.ReadState(ctx, id)
		switch {
		case err == nil:
			if st, err = session.Decode(blob); err != nil {
				r.log.Warn("corrupt session record, starting fresh", logx.String("session", id), logx.Err(err))
				st = session.NewState()
			}
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, nil, err
		}
	}

	var persist session.PersistFunc
	if r.store != nil {
		persist = r.store.WriteState
	}
	h := session.NewHandle(id, st, persist, r.log)
	p := r.reg.GetOrCreate(id, chat, h)
	return p, p.Handle(), nil
}

func (r *Router) reply(ctx context.Context, to transport.ChatTarget, text string) {
	if err := r.not.Notify(ctx, to, text); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
