package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	s := New(store.NewMemoryStore())
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("unexpected defaults %+v", got)
	}
	if got.Zoom != 100 || got.Volume != 80 || !got.Notifications || got.DebugMode {
		t.Fatalf("unexpected defaults %+v", got)
	}
}

func TestSaveLoadRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	kv, err := store.NewRedisStore(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer kv.Close()
	s := New(kv)
	want := Settings{Zoom: 150, Volume: 30, DebugMode: true}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil || got != want {
		t.Fatalf("load = %+v, %v", got, err)
	}
	raw, _ := mr.Get(store.Namespace + Key)
	if raw != `{"version":1,"state":{"zoom":150,"volume":30,"notifications":false,"debugMode":true}}` {
		t.Fatalf("unexpected document %s", raw)
	}
}

func TestLoadPartialAndClamped(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	_ = kv.Set(ctx, Key, []byte(`{"version":1,"state":{"zoom":900,"volume":-4}}`))
	got, err := New(kv).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Zoom != MaxZoom || got.Volume != 0 || !got.Notifications {
		t.Fatalf("unexpected settings %+v", got)
	}

	_ = kv.Set(ctx, Key, []byte(`not json`))
	if got, err := New(kv).Load(ctx); err == nil || got != Defaults() {
		t.Fatalf("expected decode error with defaults, got %+v %v", got, err)
	}
}

func TestApplyPushesDebugFlag(t *testing.T) {
	nop := zerolog.Nop()
	c := bridge.New(bridge.Options{Logger: &nop, Override: bridge.MockMode()})
	defer c.Close()

	Apply(Settings{DebugMode: true}, c)
	cfg := c.SDKConfig()
	if !cfg.Debug {
		t.Fatalf("debug flag not applied")
	}
	if cfg.Timeout != bridge.DefaultSDKConfig.Timeout || cfg.PollInterval != bridge.DefaultSDKConfig.PollInterval {
		t.Fatalf("other fields changed: %+v", cfg)
	}
	Apply(Settings{DebugMode: false}, c)
	if c.SDKConfig().Debug {
		t.Fatalf("debug flag not cleared")
	}
}
