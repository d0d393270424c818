// Package config resolves the settings of both binaries with the precedence
// defaults < file < env < flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/gaspardpetit/shittim/core/config"
	"github.com/gaspardpetit/shittim/internal/bridge"
)

// CompanionConfig holds configuration for the companion.
type CompanionConfig struct {
	ConfigFile      string        `yaml:"-"`
	LogLevel        string        `yaml:"log_level"`
	BridgeURL       string        `yaml:"bridge_url"`
	PageOrigin      string        `yaml:"page_origin"`
	Mode            string        `yaml:"mode"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	SDKReadyTimeout time.Duration `yaml:"sdk_ready_timeout"`
	SDKURL          string        `yaml:"sdk_url"`
	RosterInterval  time.Duration `yaml:"roster_interval"`
	StoreURL        string        `yaml:"store_url"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	CatalogFile     string        `yaml:"catalog_file"`
	MockReplyMin    time.Duration `yaml:"mock_reply_min"`
	MockReplyMax    time.Duration `yaml:"mock_reply_max"`
	TranscriptLimit int           `yaml:"transcript_limit"`
}

// SetDefaults initializes c with built-in defaults.
func (c *CompanionConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BridgeURL == "" {
		c.BridgeURL = bridge.DefaultBaseURL
	}
	if c.Mode == "" {
		c.Mode = "auto"
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = bridge.DefaultProbeTimeout
	}
	if c.SDKReadyTimeout == 0 {
		c.SDKReadyTimeout = bridge.DefaultSDKReadyTimeout
	}
	if c.RosterInterval == 0 {
		c.RosterInterval = 30 * time.Second
	}
	if c.MockReplyMin == 0 {
		c.MockReplyMin = bridge.DefaultMockReplyMin
	}
	if c.MockReplyMax == 0 {
		c.MockReplyMax = bridge.DefaultMockReplyMax
	}
	if c.TranscriptLimit == 0 {
		c.TranscriptLimit = 200
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("companion.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *CompanionConfig) ApplyEnv() {
	setString(&c.ConfigFile, "CONFIG_FILE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.BridgeURL, "BRIDGE_URL")
	setString(&c.PageOrigin, "PAGE_ORIGIN")
	setString(&c.Mode, "BRIDGE_MODE")
	setDuration(&c.ProbeTimeout, "PROBE_TIMEOUT")
	setDuration(&c.SDKReadyTimeout, "SDK_READY_TIMEOUT")
	setString(&c.SDKURL, "SDK_URL")
	setDuration(&c.RosterInterval, "ROSTER_INTERVAL")
	setString(&c.StoreURL, "STORE_URL")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.CatalogFile, "CATALOG_FILE")
	setDuration(&c.MockReplyMin, "MOCK_REPLY_MIN")
	setDuration(&c.MockReplyMax, "MOCK_REPLY_MAX")
	setInt(&c.TranscriptLimit, "TRANSCRIPT_LIMIT")
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults.
func (c *CompanionConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "companion config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.BridgeURL, "bridge-url", c.BridgeURL, "fallback peer address")
	fs.StringVar(&c.PageOrigin, "page-origin", c.PageOrigin, "origin the companion UI is served from; probed first when it is the embedded peer")
	fs.StringVar(&c.Mode, "mode", c.Mode, "bridge mode (auto, http, sdk, mock)")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", c.ProbeTimeout, "peer availability probe timeout")
	fs.DurationVar(&c.SDKReadyTimeout, "sdk-ready-timeout", c.SDKReadyTimeout, "time to wait for the host SDK during detection")
	fs.StringVar(&c.SDKURL, "sdk-url", c.SDKURL, "host SDK websocket URL; empty disables the host SDK and, in HTTP mode, reads events from the peer at <bridge-url>/bridge/ws")
	fs.DurationVar(&c.RosterInterval, "roster-interval", c.RosterInterval, "registered student refresh interval (0 disables auto refresh)")
	fs.StringVar(&c.StoreURL, "store-url", c.StoreURL, "redis connection URL for transcripts and settings; empty keeps them in memory")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus metrics listen address; empty disables")
	fs.StringVar(&c.CatalogFile, "catalog", c.CatalogFile, "student catalog file; empty uses the bundled catalog")
	fs.DurationVar(&c.MockReplyMin, "mock-reply-min", c.MockReplyMin, "minimum delay of a mock student reply")
	fs.DurationVar(&c.MockReplyMax, "mock-reply-max", c.MockReplyMax, "maximum delay of a mock student reply")
	fs.IntVar(&c.TranscriptLimit, "transcript-limit", c.TranscriptLimit, "messages kept per student transcript")
}

// LoadFile populates the config from a YAML file.
func (c *CompanionConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Override returns the bridge mode forced by the configuration, unresolved
// for "auto".
func (c *CompanionConfig) Override() (bridge.Mode, error) {
	kind, err := bridge.ParseKind(c.Mode)
	if err != nil {
		return bridge.Mode{}, err
	}
	switch kind {
	case bridge.KindHTTP:
		return bridge.HTTPMode(c.BridgeURL), nil
	case bridge.KindInjectedSDK:
		return bridge.InjectedSDKMode(), nil
	case bridge.KindMock:
		return bridge.MockMode(), nil
	}
	return bridge.Mode{}, nil
}

// BridgeOptions turns the configuration into bridge client options. The host
// SDK is left for the caller to attach.
func (c *CompanionConfig) BridgeOptions() (bridge.Options, error) {
	override, err := c.Override()
	if err != nil {
		return bridge.Options{}, err
	}
	if c.MockReplyMax > 0 && c.MockReplyMax < c.MockReplyMin {
		return bridge.Options{}, fmt.Errorf("mock reply max %s is below min %s", c.MockReplyMax, c.MockReplyMin)
	}
	return bridge.Options{
		BaseURL:         strings.TrimRight(c.BridgeURL, "/"),
		PageOrigin:      c.PageOrigin,
		ProbeTimeout:    c.ProbeTimeout,
		SDKReadyTimeout: c.SDKReadyTimeout,
		Override:        override,
		MockReplyMin:    c.MockReplyMin,
		MockReplyMax:    c.MockReplyMax,
	}, nil
}
