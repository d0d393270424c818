package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "github.com/gaspardpetit/shittim/core/config"
)

func setString(dst *string, key string) {
	if v := commoncfg.GetEnv(key, ""); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := commoncfg.GetEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := commoncfg.GetEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConfigArg returns the value of a --config or -config argument, so the file
// can be loaded before flags are parsed.
func ConfigArg(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := strings.TrimLeft(args[i], "-")
		if len(a) == len(args[i]) {
			continue
		}
		if a == "config" && i+1 < len(args) {
			return args[i+1], true
		}
		if v, ok := strings.CutPrefix(a, "config="); ok {
			return v, true
		}
	}
	return "", false
}

type layered interface {
	SetDefaults()
	ApplyEnv()
	LoadFile(path string) error
	BindFlagsFromCurrent(fs *flag.FlagSet)
}

// bind applies defaults, the config file and the environment to cfg, then
// binds its flags on fs with those values as defaults. A missing config file
// is not an error.
func bind(cfg layered, file *string, fs *flag.FlagSet, args []string) error {
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	if v, ok := ConfigArg(args); ok {
		*file = v
	}
	if *file != "" {
		if err := cfg.LoadFile(*file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config %s: %w", *file, err)
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(fs)
	return nil
}

// Bind prepares c from defaults, the config file named in args and the
// environment, and binds its flags on fs. Parsing fs is left to the caller.
func (c *CompanionConfig) Bind(fs *flag.FlagSet, args []string) error {
	return bind(c, &c.ConfigFile, fs, args)
}

// Parse is Bind followed by parsing args, giving the precedence
// defaults < file < env < args.
func (c *CompanionConfig) Parse(fs *flag.FlagSet, args []string) error {
	if err := c.Bind(fs, args); err != nil {
		return err
	}
	return fs.Parse(args)
}

// Parse resolves the peer configuration like CompanionConfig.Parse.
func (c *PeerConfig) Parse(fs *flag.FlagSet, args []string) error {
	if err := bind(c, &c.ConfigFile, fs, args); err != nil {
		return err
	}
	return fs.Parse(args)
}
