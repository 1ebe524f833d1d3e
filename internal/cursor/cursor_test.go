package cursor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"slappd/internal/storage"
)

type call struct {
	Op   string
	User string
	ID   int64
}

// recordingBackend is an in-memory storage.Backend that logs every call.
type recordingBackend struct {
	data   map[string]int64
	calls  []call
	getErr error
	setErr error
}

func newBackend() *recordingBackend {
	return &recordingBackend{data: map[string]int64{}}
}

func (b *recordingBackend) GetCursor(_ context.Context, user string) (int64, bool, error) {
	b.calls = append(b.calls, call{Op: "get", User: user})
	if b.getErr != nil {
		return 0, false, b.getErr
	}
	id, ok := b.data[user]
	return id, ok, nil
}

func (b *recordingBackend) SetCursor(_ context.Context, user string, id int64) error {
	b.calls = append(b.calls, call{Op: "set", User: user, ID: id})
	if b.setErr != nil {
		return b.setErr
	}
	b.data[user] = id
	return nil
}

func (b *recordingBackend) DeleteCursor(_ context.Context, user string) error {
	b.calls = append(b.calls, call{Op: "delete", User: user})
	delete(b.data, user)
	return nil
}

func (b *recordingBackend) ListCursors(context.Context) (map[string]int64, error) {
	return b.data, nil
}

func (b *recordingBackend) Close() error { return nil }

var _ storage.Backend = (*recordingBackend)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreMemoryOnly(t *testing.T) {
	ctx := context.Background()
	s := New(nil, discardLogger())

	if _, ok, err := s.Get(ctx, "alice"); err != nil || ok {
		t.Fatalf("Get on fresh store = ok %v, err %v; want absent", ok, err)
	}
	if err := s.Set(ctx, "alice", 100); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if diff := cmp.Diff(int64(100), got); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}

	if err := s.Clear(ctx, "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "alice"); ok {
		t.Error("expected cursor to be absent after Clear")
	}
	if s.Durable() {
		t.Error("memory-only store reports durable")
	}
}

func TestStoreReadsThroughBackendOnce(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	b.data["alice"] = 42
	s := New(b, discardLogger())

	for range 3 {
		got, ok, err := s.Get(ctx, "alice")
		if err != nil || !ok {
			t.Fatalf("Get = ok %v, err %v", ok, err)
		}
		if got != 42 {
			t.Fatalf("Get = %d, want 42", got)
		}
	}

	want := []call{{Op: "get", User: "alice"}}
	if diff := cmp.Diff(want, b.calls); diff != "" {
		t.Errorf("backend calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreSetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	s := New(b, discardLogger())

	for _, id := range []int64{100, 100, 105, 105} {
		if err := s.Set(ctx, "alice", id); err != nil {
			t.Fatalf("set %d: %v", id, err)
		}
	}

	want := []call{
		{Op: "set", User: "alice", ID: 100},
		{Op: "set", User: "alice", ID: 105},
	}
	if diff := cmp.Diff(want, b.calls); diff != "" {
		t.Errorf("backend calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreClearRemovesFromBackend(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	s := New(b, discardLogger())

	if err := s.Set(ctx, "alice", 7); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Clear(ctx, "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := b.data["alice"]; ok {
		t.Error("backend still holds cursor after Clear")
	}
	if _, ok, _ := s.Get(ctx, "alice"); ok {
		t.Error("store still returns cursor after Clear")
	}
}

func TestStoreBackendErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")

	t.Run("get error is returned", func(t *testing.T) {
		b := newBackend()
		b.getErr = boom
		s := New(b, discardLogger())
		if _, _, err := s.Get(ctx, "alice"); !errors.Is(err, boom) {
			t.Fatalf("Get err = %v, want %v", err, boom)
		}
	})

	t.Run("set error keeps cache", func(t *testing.T) {
		b := newBackend()
		b.setErr = boom
		s := New(b, discardLogger())
		if err := s.Set(ctx, "alice", 9); !errors.Is(err, boom) {
			t.Fatalf("Set err = %v, want %v", err, boom)
		}
		got, ok, err := s.Get(ctx, "alice")
		if err != nil || !ok || got != 9 {
			t.Fatalf("Get = %d, ok %v, err %v; want 9 from cache", got, ok, err)
		}
	})
}

func TestStoreLoad(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	b.data["alice"] = 1
	b.data["bob"] = 2
	s := New(b, discardLogger())

	if err := s.Load(ctx, []string{"alice", "bob", "carol"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]int64{"alice": 1, "bob": 2}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
