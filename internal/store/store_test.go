package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, k := range []string{"transcript:hina", "transcript:arona", "settings"} {
		if err := s.Set(ctx, k, []byte("v-"+k)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	got, err := s.Get(ctx, "settings")
	if err != nil || string(got) != "v-settings" {
		t.Fatalf("get settings = %q, %v", got, err)
	}
	keys, err := s.Keys(ctx, "transcript:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if want := []string{"transcript:arona", "transcript:hina"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	if err := s.Delete(ctx, "transcript:hina", "nope"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "transcript:hina"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key still present: %v", err)
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("empty delete: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exercise(t, s)

	// values are copied in and out
	buf := []byte("abc")
	_ = s.Set(context.Background(), "k", buf)
	buf[0] = 'x'
	got, _ := s.Get(context.Background(), "k")
	got[1] = 'y'
	again, _ := s.Get(context.Background(), "k")
	if string(again) != "abc" {
		t.Fatalf("memory store shares buffers: %q", again)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	defer s.Close()
	exercise(t, s)
	if !mr.Exists(Namespace + "settings") {
		t.Fatalf("keys are not namespaced: %v", mr.Keys())
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}

	mr := miniredis.RunT(t)
	s, err = Open(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	if _, ok := s.(*redisStore); !ok {
		t.Fatalf("expected redis store, got %T", s)
	}
	_ = s.Close()

	if _, err := Open(context.Background(), "redis://:secret@127.0.0.1:1"); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestParseRedisURL(t *testing.T) {
	cases := []struct {
		name, url  string
		addrs      []string
		db         int
		master     string
		tls        bool
		user, pass string
	}{
		{name: "plain", url: "localhost:6379", addrs: []string{"localhost:6379"}},
		{name: "db path", url: "redis://u:p@h:1/2", addrs: []string{"h:1"}, db: 2, user: "u", pass: "p"},
		{name: "db query", url: "redis://h:1?db=3", addrs: []string{"h:1"}, db: 3},
		{name: "tls cluster", url: "rediss://a:1,b:2", addrs: []string{"a:1", "b:2"}, tls: true},
		{name: "sentinel", url: "rediss-sentinel://s1:1,s2:2/main?db=1", addrs: []string{"s1:1", "s2:2"}, db: 1, master: "main", tls: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := parseRedisURL(tc.url)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(o.Addrs, tc.addrs) || o.DB != tc.db || o.MasterName != tc.master {
				t.Fatalf("unexpected options %+v", o)
			}
			if (o.TLSConfig != nil) != tc.tls || o.Username != tc.user || o.Password != tc.pass {
				t.Fatalf("unexpected auth/tls %+v", o)
			}
		})
	}
	for _, bad := range []string{"http://h:1", "redis://h:1/x", "redis://h:1?db=-1", "redis-sentinel://h:1"} {
		if _, err := parseRedisURL(bad); err == nil {
			t.Fatalf("%s: expected error", bad)
		}
	}
}
