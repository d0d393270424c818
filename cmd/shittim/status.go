package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/shittim/internal/bridge"
)

type statusReport struct {
	Mode   string            `json:"mode"`
	Bridge bridge.Status     `json:"bridge"`
	Player bridge.PlayerInfo `json:"player"`
}

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Detect the bridge transport and show the player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			ctx := cmd.Context()
			rep := statusReport{Mode: a.client.Resolve(ctx).String()}
			rep.Player = a.client.PlayerInfo(ctx)
			rep.Bridge = a.client.Status()
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			a.printf("mode:      %s\n", rep.Mode)
			a.printf("ready:     %v\n", rep.Bridge.Ready)
			a.printf("pending:   %d\n", rep.Bridge.PendingRequests)
			a.printf("debug:     %v\n", rep.Bridge.Config.Debug)
			p := rep.Player
			pos := bridge.DefaultPosition
			if p.Position != nil {
				pos = *p.Position
			}
			a.printf("player:    %s (%.0f/%.0f hp, level %d)\n", p.Name, p.Health, p.MaxHealth, p.Level)
			a.printf("position:  %.1f, %.1f, %.1f in %s\n", pos.X, pos.Y, pos.Z, p.Dimension)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
