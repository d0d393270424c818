package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/shittim/internal/settings"
)

func (c *cli) settingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings [key=value...]",
		Short: "Show or change zoom, volume, notifications and debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			ctx := cmd.Context()
			st, err := a.settings.Load(ctx)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				for _, kv := range args {
					if st, err = setOption(st, kv); err != nil {
						return err
					}
				}
				if err := a.settings.Save(ctx, st); err != nil {
					return err
				}
				st = st.Clamp()
				settings.Apply(st, a.client)
			}
			a.printf("zoom=%d volume=%d notifications=%v debug=%v\n", st.Zoom, st.Volume, st.Notifications, st.DebugMode)
			return nil
		},
	}
}

func setOption(st settings.Settings, kv string) (settings.Settings, error) {
	key, val, ok := strings.Cut(kv, "=")
	if !ok {
		return st, fmt.Errorf("expected key=value, got %q", kv)
	}
	var err error
	switch strings.ToLower(key) {
	case "zoom":
		st.Zoom, err = strconv.Atoi(val)
	case "volume":
		st.Volume, err = strconv.Atoi(val)
	case "notifications":
		st.Notifications, err = strconv.ParseBool(val)
	case "debug", "debugmode":
		st.DebugMode, err = strconv.ParseBool(val)
	default:
		return st, fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return st, fmt.Errorf("%s: %w", key, err)
	}
	return st, nil
}
