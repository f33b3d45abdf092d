package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	logx "roomwatch/pkg/logx"
)

type memPersist struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	writes int
	fail   bool
}

func (p *memPersist) fn() PersistFunc {
	return func(ctx context.Context, id string, blob []byte) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.writes++
		if p.fail {
			return errors.New("disk full")
		}
		if p.blobs == nil {
			p.blobs = map[string][]byte{}
		}
		p.blobs[id] = blob
		return nil
	}
}

func (p *memPersist) last(t *testing.T, id string) State {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	blob, ok := p.blobs[id]
	if !ok {
		t.Fatalf("no persisted blob for %q", id)
	}
	st, err := Decode(blob)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestHandleWriteThrough(t *testing.T) {
	t.Parallel()
	p := &memPersist{}
	h := NewHandle("chat-9", NewState(), p.fn(), logx.Nop())
	ctx := context.Background()

	h.SetToken(ctx, "tok")
	h.SetReferer(ctx, "https://talk.example.com")
	h.SetAllowZero(ctx, true)
	h.SetInterval(ctx, 5000)
	h.SetSchedule(ctx, "*/5 * * * *")
	h.SetCount(ctx, Count{RoomsCount: 4})
	h.SetPolling(ctx, true)
	h.SetResumeOnBoot(ctx, true)

	st := p.last(t, "chat-9")
	if st.Version != SchemaVersion {
		t.Fatalf("version = %d", st.Version)
	}
	if st.Options.AuthToken != "tok" || st.Options.Referer != "https://talk.example.com" {
		t.Fatalf("credentials not persisted: %+v", st.Options)
	}
	if !st.Options.AllowZero || st.Options.IntervalMS != 5000 || st.Options.Schedule != "*/5 * * * *" {
		t.Fatalf("options not persisted: %+v", st.Options)
	}
	if st.LastCount.RoomsCount != 4 {
		t.Fatalf("last count not persisted: %+v", st.LastCount)
	}
	if !st.Options.Polling || !st.Options.ResumeOnBoot {
		t.Fatalf("flags not persisted: %+v", st.Options)
	}
	if got := h.Snapshot(); got != st {
		t.Fatalf("snapshot %+v != persisted %+v", got, st)
	}
}

func TestHandleMarkStopped(t *testing.T) {
	t.Parallel()
	p := &memPersist{}
	h := NewHandle("s", NewState(), p.fn(), logx.Nop())
	ctx := context.Background()

	h.SetPolling(ctx, true)
	h.SetResumeOnBoot(ctx, true)

	// non-committal stop keeps the resume claim
	h.MarkStopped(ctx, false)
	st := p.last(t, "s")
	if st.Options.Polling {
		t.Fatal("polling should be cleared")
	}
	if !st.Options.ResumeOnBoot {
		t.Fatal("resume_on_boot should survive a non-committal stop")
	}

	h.MarkStopped(ctx, true)
	st = p.last(t, "s")
	if st.Options.ResumeOnBoot {
		t.Fatal("resume_on_boot should be cleared by a committed stop")
	}
}

func TestHandleReset(t *testing.T) {
	t.Parallel()
	p := &memPersist{}
	h := NewHandle("s", NewState(), p.fn(), logx.Nop())
	ctx := context.Background()

	h.SetToken(ctx, "tok")
	h.SetCount(ctx, Count{RoomsCount: 9})
	h.Reset(ctx)

	st := p.last(t, "s")
	if st != NewState() {
		t.Fatalf("reset state = %+v", st)
	}
}

func TestHandlePersistFailureKeepsMemory(t *testing.T) {
	t.Parallel()
	p := &memPersist{fail: true}
	h := NewHandle("s", NewState(), p.fn(), logx.Nop())

	h.SetToken(context.Background(), "tok")
	if got := h.Options().AuthToken; got != "tok" {
		t.Fatalf("in-memory state lost on persist failure: %q", got)
	}
	if p.writes != 1 {
		t.Fatalf("writes = %d", p.writes)
	}
}

func TestDecodeDefaultsVersion(t *testing.T) {
	t.Parallel()
	st, err := Decode([]byte(`{"options":{"auth_token":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if st.Version != SchemaVersion {
		t.Fatalf("version = %d", st.Version)
	}
	if st.Options.AuthToken != "x" {
		t.Fatalf("options = %+v", st.Options)
	}
}

func TestDecodeToleratesUnknownFields(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte(`{"version":1,"future_field":true}`)); err != nil {
		t.Fatal(err)
	}
}

func TestEncodeStampsVersion(t *testing.T) {
	t.Parallel()
	blob, err := State{}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(blob, &m); err != nil {
		t.Fatal(err)
	}
	if string(m["version"]) != "1" {
		t.Fatalf("version field = %s", m["version"])
	}
}

func TestOptionsInterval(t *testing.T) {
	t.Parallel()
	if got := (Options{}).Interval().Milliseconds(); got != DefaultIntervalMS {
		t.Fatalf("default interval = %dms", got)
	}
	if got := (Options{IntervalMS: -1}).Interval().Milliseconds(); got != DefaultIntervalMS {
		t.Fatalf("negative interval = %dms", got)
	}
	if got := (Options{IntervalMS: 2500}).Interval().Milliseconds(); got != 2500 {
		t.Fatalf("interval = %dms", got)
	}
}
