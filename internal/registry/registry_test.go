package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/ktalk"
	rtsup "roomwatch/internal/runtime/supervisor"
	"roomwatch/internal/session"
	"roomwatch/internal/storage"
	"roomwatch/internal/transport"
)

type scriptedSource struct {
	mu     sync.Mutex
	counts map[string][]int
	calls  map[string]int
}

func (f *scriptedSource) GetCount(ctx context.Context, token, referer string) (session.Count, error) {
	if token == "" || referer == "" {
		return session.Count{}, ktalk.ErrNotConfigured
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	seq := f.counts[token]
	i := f.calls[token]
	f.calls[token]++
	if len(seq) == 0 {
		return session.Count{}, nil
	}
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return session.Count{RoomsCount: seq[i]}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(ctx context.Context, to transport.ChatTarget, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.msgs))
	copy(out, n.msgs)
	return out
}

func (n *recordingNotifier) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range n.snapshot() {
			if strings.Contains(m, substr) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no notification containing %q; got %v", substr, n.snapshot())
}

func newTestRegistry(t *testing.T, src *scriptedSource) (*Registry, *recordingNotifier) {
	t.Helper()
	not := &recordingNotifier{}
	sup := rtsup.NewSupervisor(context.Background(), rtsup.WithCancelOnError(false))
	t.Cleanup(func() { _ = sup.Stop(context.Background()) })
	return New(src, not, sup, logx.Nop()), not
}

func testHandle(id, token string) *session.Handle {
	st := session.NewState()
	st.Options.AuthToken = token
	st.Options.Referer = "https://talk.example.com"
	st.Options.IntervalMS = 10
	return session.NewHandle(id, st, nil, logx.Nop())
}

func TestSessionIDRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []transport.ChatTarget{
		{ChatID: 42},
		{ChatID: -100123, ThreadID: 7},
	}
	for _, tc := range cases {
		id := SessionID(tc)
		got, err := ParseSessionID(id)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc {
			t.Fatalf("round trip %+v -> %q -> %+v", tc, id, got)
		}
	}
	if _, err := ParseSessionID("not-a-chat"); err == nil {
		t.Fatal("expected error for junk id")
	}
}

func TestGetOrCreateSingleton(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t, &scriptedSource{})
	target := transport.ChatTarget{ChatID: 1}

	var mu sync.Mutex
	seen := map[any]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := r.GetOrCreate("1", target, testHandle("1", "tok"))
			mu.Lock()
			seen[p] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 1 {
		t.Fatalf("%d distinct pollers for one session", len(seen))
	}
	if r.Len() != 1 {
		t.Fatalf("registry len = %d", r.Len())
	}
	if r.Get("1") == nil || r.Get("2") != nil {
		t.Fatal("Get lookup broken")
	}
}

func TestRelayZeroSuppression(t *testing.T) {
	t.Parallel()
	// poll sequence 0 -> 3 -> 3: the zero is suppressed, the 3 notifies once
	src := &scriptedSource{counts: map[string][]int{"tok": {0, 3, 3, 3}}}
	r, not := newTestRegistry(t, src)

	h := testHandle("1", "tok")
	h.SetCount(context.Background(), session.Count{RoomsCount: 5}) // so 0 is a change
	p := r.GetOrCreate("1", transport.ChatTarget{ChatID: 1}, h)

	p.Start(context.Background(), false, false)
	not.waitFor(t, "3 rooms have new messages")
	p.Stop(context.Background(), true)

	count := 0
	for _, m := range not.snapshot() {
		if strings.Contains(m, "0 rooms") {
			t.Fatalf("zero count notified despite allow_zero=false: %v", not.snapshot())
		}
		if strings.Contains(m, "3 rooms have new messages") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("change notified %d times, want exactly once", count)
	}
}

func TestRelayZeroAllowed(t *testing.T) {
	t.Parallel()
	src := &scriptedSource{counts: map[string][]int{"tok": {0}}}
	r, not := newTestRegistry(t, src)

	h := testHandle("1", "tok")
	h.SetAllowZero(context.Background(), true)
	h.SetCount(context.Background(), session.Count{RoomsCount: 2})
	p := r.GetOrCreate("1", transport.ChatTarget{ChatID: 1}, h)

	p.Start(context.Background(), false, false)
	not.waitFor(t, "0 rooms have new messages")
	p.Stop(context.Background(), true)
}

func TestRelayErrorStopsAndPreservesResume(t *testing.T) {
	t.Parallel()
	// no credentials -> the first poll fails fast with a configuration error
	src := &scriptedSource{}
	r, not := newTestRegistry(t, src)

	st := session.NewState()
	st.Options.IntervalMS = 10
	h := session.NewHandle("1", st, nil, logx.Nop())
	p := r.GetOrCreate("1", transport.ChatTarget{ChatID: 1}, h)

	p.Start(context.Background(), false, false)
	not.waitFor(t, "ConfigurationError: ")

	deadline := time.Now().Add(2 * time.Second)
	for p.Running() {
		if time.Now().After(deadline) {
			t.Fatal("poller still running after error")
		}
		time.Sleep(5 * time.Millisecond)
	}
	opts := h.Options()
	if opts.Polling {
		t.Fatal("polling flag still set after error stop")
	}
	if !opts.ResumeOnBoot {
		t.Fatal("error stop must preserve resume_on_boot")
	}
}

func TestRestoreResumesSessions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := storage.Open(storage.Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	write := func(id, token string, resume bool) {
		st := session.NewState()
		st.Options.AuthToken = token
		st.Options.Referer = "https://talk.example.com"
		st.Options.IntervalMS = 10
		st.Options.ResumeOnBoot = resume
		st.Options.Polling = resume
		blob, err := st.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if err := store.WriteState(ctx, id, blob); err != nil {
			t.Fatal(err)
		}
	}
	write("1", "tok-a", true)
	write("2", "tok-b", false)
	// corrupt record must not break the others
	if err := os.WriteFile(filepath.Join(dir, "3.json"), []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}

	src := &scriptedSource{counts: map[string][]int{"tok-a": {4}}}
	r, not := newTestRegistry(t, src)
	r.Restore(ctx, store)

	if r.Len() != 2 {
		t.Fatalf("restored %d sessions, want 2", r.Len())
	}
	not.waitFor(t, "restarted, resuming polling")
	not.waitFor(t, "4 rooms have new messages")

	p2 := r.Get("2")
	if p2 == nil || p2.Running() {
		t.Fatal("idle session should be registered but not running")
	}

	r.StopAll(ctx)
	if r.Get("1").Handle().Options().ResumeOnBoot != true {
		t.Fatal("StopAll must preserve resume intent")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()
	src := &scriptedSource{counts: map[string][]int{"tok-b": {1, 2}}}
	r, not := newTestRegistry(t, src)
	ctx := context.Background()

	// session 1 has no token and fails its first poll; session 2 is healthy
	pa := r.GetOrCreate("1", transport.ChatTarget{ChatID: 1}, testHandle("1", ""))
	pb := r.GetOrCreate("2", transport.ChatTarget{ChatID: 2}, testHandle("2", "tok-b"))

	pa.Start(ctx, false, false)
	pb.Start(ctx, false, false)

	not.waitFor(t, "ConfigurationError: ")
	not.waitFor(t, "2 rooms have new messages")

	deadline := time.Now().Add(2 * time.Second)
	for pa.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pa.Running() {
		t.Fatal("failed session still polling")
	}
	if !pb.Running() {
		t.Fatal("healthy session stopped by neighbor's error")
	}
	if got := pb.Handle().LastCount().RoomsCount; got != 2 {
		t.Fatalf("healthy session count = %d, want 2", got)
	}
}
