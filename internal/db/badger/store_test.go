package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/disagg/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{InMemory: true})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestGetSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "disagg-bins/mags", []byte("[5,6,7]")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "disagg-bins/mags")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "[5,6,7]" {
		t.Errorf("got %q, want %q", got, "[5,6,7]")
	}
}

func TestGet_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists on empty store = (%v, %v), want (false, nil)", ok, err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err = s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestDel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("Get after Del = %v, want ErrKeyNotFound", err)
	}
}

func TestScan_PrefixAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"disagg/b", "disagg/a", "other/x"} {
		if err := s.Set(ctx, k, []byte("v")); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	keys, err := s.Scan(ctx, "disagg/")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 2 || keys[0] != "disagg/a" || keys[1] != "disagg/b" {
		t.Errorf("Scan = %v, want [disagg/a disagg/b]", keys)
	}
}
