package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/config"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, err := newRootCmd(os.Args[1:])
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("load config")
	}
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries the resolved configuration and, once a subcommand runs, the
// wired companion.
type cli struct {
	cfg config.CompanionConfig
	app *app
}

// newRootCmd resolves config with precedence defaults < file < env < args;
// cobra parses the args.
func newRootCmd(args []string) (*cobra.Command, error) {
	c := &cli{}
	fs := flag.NewFlagSet("shittim", flag.ContinueOnError)
	if err := c.cfg.Bind(fs, args); err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:           "shittim",
		Short:         "Companion for the MiracleBridge game peer",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logx.Configure(c.cfg.LogLevel)
			a, err := newApp(cmd.Context(), c.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.Version = fmt.Sprintf("%s sha=%s date=%s", version, buildSHA, buildDate)
	root.SetVersionTemplate("shittim {{.Version}}\n")
	root.PersistentFlags().AddGoFlagSet(fs)
	root.SetArgs(args)

	root.AddCommand(c.statusCmd())
	root.AddCommand(c.rosterCmd())
	root.AddCommand(c.chatCmd())
	root.AddCommand(c.watchCmd())
	root.AddCommand(c.historyCmd())
	root.AddCommand(c.clearCmd())
	root.AddCommand(c.settingsCmd())
	return root, nil
}
