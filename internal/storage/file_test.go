package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	logx "roomwatch/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q): expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	if _, err := st.ReadState(ctx, "chat-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	blob := []byte(`{"version":1,"last_count":{"rooms_count":3}}`)
	if err := st.WriteState(ctx, "chat-1", blob); err != nil {
		t.Fatal(err)
	}
	got, err := st.ReadState(ctx, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(blob) {
		t.Fatalf("read back %q, want %q", got, blob)
	}

	// overwrite
	blob2 := []byte(`{"version":1,"last_count":{"rooms_count":7}}`)
	if err := st.WriteState(ctx, "chat-1", blob2); err != nil {
		t.Fatal(err)
	}
	got, err = st.ReadState(ctx, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(blob2) {
		t.Fatalf("read back %q, want %q", got, blob2)
	}
}

func TestFileStoreListIDs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := st.WriteState(ctx, id, []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	// stray files must not show up as sessions
	if err := os.WriteFile(filepath.Join(dir, "junk.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	ids, err := st.ListIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("ListIDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ListIDs = %v, want %v", ids, want)
		}
	}
}

func TestFileStoreDelete(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	if err := st.WriteState(ctx, "gone", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteState(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ReadState(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting a missing record is not an error
	if err := st.DeleteState(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
}

func TestFileStoreRejectsBadIDs(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if err := st.WriteState(ctx, id, []byte(`{}`)); err == nil {
			t.Fatalf("WriteState(%q): expected error", id)
		}
	}
}
