// Package settings persists the companion's user preferences.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/store"
)

// Key is the store key holding the settings document.
const Key = "settings"

const version = 1

// Zoom bounds, in percent.
const (
	MinZoom = 50
	MaxZoom = 250
)

type Settings struct {
	Zoom          int  `json:"zoom"`
	Volume        int  `json:"volume"`
	Notifications bool `json:"notifications"`
	DebugMode     bool `json:"debugMode"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	return Settings{Zoom: 100, Volume: 80, Notifications: true}
}

// Clamp brings zoom and volume back into range.
func (s Settings) Clamp() Settings {
	s.Zoom = min(max(s.Zoom, MinZoom), MaxZoom)
	s.Volume = min(max(s.Volume, 0), 100)
	return s
}

type document struct {
	Version int      `json:"version"`
	State   Settings `json:"state"`
}

// Configurer receives the debug flag. *bridge.Client implements it.
type Configurer interface {
	SDKConfig() bridge.SDKConfig
	Configure(bridge.SDKConfig)
}

type Store struct {
	kv store.Store
}

func New(kv store.Store) *Store { return &Store{kv: kv} }

// Load returns the saved settings, or Defaults when nothing was saved.
// Fields missing from an older document keep their default.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	b, err := s.kv.Get(ctx, Key)
	if errors.Is(err, store.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), err
	}
	doc := document{State: Defaults()}
	if err := json.Unmarshal(b, &doc); err != nil {
		return Defaults(), fmt.Errorf("decode settings: %w", err)
	}
	if doc.Version > version {
		logx.Log.Warn().Int("version", doc.Version).Msg("settings written by a newer version")
	}
	return doc.State.Clamp(), nil
}

func (s *Store) Save(ctx context.Context, st Settings) error {
	b, err := json.Marshal(document{Version: version, State: st.Clamp()})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, Key, b)
}

// Apply pushes the debug flag to the bridge, keeping the rest of its
// configuration.
func Apply(st Settings, c Configurer) {
	cfg := c.SDKConfig()
	if cfg.Debug == st.DebugMode {
		return
	}
	cfg.Debug = st.DebugMode
	c.Configure(cfg)
}
