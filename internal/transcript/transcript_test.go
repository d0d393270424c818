package transcript

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/gaspardpetit/shittim/internal/store"
)

func TestAppendLoadClear(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore(), 0)
	s.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	if msgs, err := s.Load(ctx, "hina"); err != nil || len(msgs) != 0 {
		t.Fatalf("empty load = %v, %v", msgs, err)
	}
	m, err := s.Append(ctx, "HINA", Message{Sender: SenderPlayer, Content: "你好"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if m.ID == "" || !m.Time.Equal(s.now()) {
		t.Fatalf("id/time not filled: %+v", m)
	}
	if _, err := s.Append(ctx, "hina", Message{Sender: SenderStudent, Content: "老师好", RequestID: "r1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, _ = s.Append(ctx, "arona", Message{Sender: SenderStudent, Content: "hi"})

	msgs, err := s.Load(ctx, "Hina")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "你好" || msgs[1].RequestID != "r1" {
		t.Fatalf("unexpected transcript %+v", msgs)
	}
	ids, _ := s.Students(ctx)
	if !reflect.DeepEqual(ids, []string{"arona", "hina"}) {
		t.Fatalf("unexpected students %v", ids)
	}

	if err := s.Clear(ctx, "hina"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if msgs, _ := s.Load(ctx, "hina"); len(msgs) != 0 {
		t.Fatalf("transcript not cleared")
	}
	if err := s.Clear(ctx, ""); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if ids, _ := s.Students(ctx); len(ids) != 0 {
		t.Fatalf("transcripts remain: %v", ids)
	}
}

func TestLimitDropsOldest(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore(), 3)
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		if _, err := s.Append(ctx, "yuzu", Message{Sender: SenderPlayer, Content: c}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, _ := s.Load(ctx, "yuzu")
	if len(msgs) != 3 || msgs[0].Content != "c" || msgs[2].Content != "e" {
		t.Fatalf("unexpected transcript %+v", msgs)
	}
}

func TestAppendRejectsEmptyStudent(t *testing.T) {
	s := New(store.NewMemoryStore(), 0)
	if _, err := s.Append(context.Background(), "", Message{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRedisBacked(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	kv, err := store.NewRedisStore(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer kv.Close()
	s := New(kv, 0)
	if _, err := s.Append(ctx, "aris", Message{Sender: SenderStudent, Content: "邦邦咔邦"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !mr.Exists(store.Namespace + "transcript:aris") {
		t.Fatalf("transcript not stored in redis: %v", mr.Keys())
	}
	_ = mr.Set(store.Namespace+"transcript:bad", "{")
	if _, err := s.Load(ctx, "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
}
