package config

import (
	"flag"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/gaspardpetit/shittim/core/config"
	"github.com/gaspardpetit/shittim/internal/bridge"
)

// PeerConfig holds configuration for the development peer.
type PeerConfig struct {
	ConfigFile     string        `yaml:"-"`
	LogLevel       string        `yaml:"log_level"`
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	StoreURL       string        `yaml:"store_url"`
	ReplyMin       time.Duration `yaml:"reply_min"`
	ReplyMax       time.Duration `yaml:"reply_max"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

// SetDefaults initializes c with built-in defaults.
func (c *PeerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Addr == "" {
		c.Addr = "127.0.0.1:25555"
	}
	if c.ReplyMin == 0 {
		c.ReplyMin = bridge.DefaultMockReplyMin
	}
	if c.ReplyMax == 0 {
		c.ReplyMax = bridge.DefaultMockReplyMax
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("peer.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *PeerConfig) ApplyEnv() {
	setString(&c.ConfigFile, "CONFIG_FILE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Addr, "PEER_ADDR")
	if v := commoncfg.GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.StoreURL, "STORE_URL")
	setDuration(&c.ReplyMin, "REPLY_MIN")
	setDuration(&c.ReplyMax, "REPLY_MAX")
	setDuration(&c.DrainTimeout, "DRAIN_TIMEOUT")
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults.
func (c *PeerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "peer config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "separate Prometheus metrics listen address; empty serves /metrics on --addr")
	fs.StringVar(&c.StoreURL, "store-url", c.StoreURL, "redis connection URL for chat history; empty keeps it in memory")
	fs.DurationVar(&c.ReplyMin, "reply-min", c.ReplyMin, "minimum delay of a student reply")
	fs.DurationVar(&c.ReplyMax, "reply-max", c.ReplyMax, "maximum delay of a student reply")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight requests on shutdown")
}

// LoadFile populates the config from a YAML file.
func (c *PeerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
