package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/robocare/pkg/kv"
)

func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.OpenBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	m := kv.NewMemory()
	t.Cleanup(func() {
		b.Close()
		m.Close()
	})
	return map[string]kv.Store{"memory": m, "badger": b}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"session", "a", "msg", "1"}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, key, []byte("hello")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("Get = %q, want hello", got)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after delete = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, kv.Key{"no", "such"}); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestScanOrderAndPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []kv.Key{
				{"session", "a", "msg", "02"},
				{"session", "a", "msg", "01"},
				{"session", "ab", "msg", "01"},
				{"session", "b", "msg", "01"},
			} {
				if err := s.Set(ctx, k, []byte(k.String())); err != nil {
					t.Fatalf("Set %s: %v", k, err)
				}
			}

			var got []string
			for e, err := range s.Scan(ctx, kv.Key{"session", "a"}) {
				if err != nil {
					t.Fatalf("Scan: %v", err)
				}
				got = append(got, e.Key.String())
			}
			want := []string{"session/a/msg/01", "session/a/msg/02"}
			if len(got) != len(want) {
				t.Fatalf("Scan = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("Scan[%d] = %q, want %q", i, got[i], want[i])
				}
			}
		})
	}
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			prefix := kv.Key{"session", "x"}
			if err := s.Set(ctx, kv.Key{"session", "x", "old"}, []byte("1")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, kv.Key{"session", "y", "keep"}, []byte("1")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			err := s.Replace(ctx, prefix, []kv.Entry{{Key: kv.Key{"session", "x", "new"}, Value: []byte("2")}})
			if err != nil {
				t.Fatalf("Replace: %v", err)
			}
			if _, err := s.Get(ctx, kv.Key{"session", "x", "old"}); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("old key survived Replace: %v", err)
			}
			if v, err := s.Get(ctx, kv.Key{"session", "x", "new"}); err != nil || string(v) != "2" {
				t.Fatalf("new key = %q, %v", v, err)
			}
			if _, err := s.Get(ctx, kv.Key{"session", "y", "keep"}); err != nil {
				t.Fatalf("sibling prefix touched: %v", err)
			}
		})
	}
}
