// Package main is dk, the command-line companion of the oroio daemon. It
// works directly on the data directory.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/app"
	"github.com/atinyakov/oroio/internal/config"
	"github.com/atinyakov/oroio/internal/logger"
)

var (
	// version holds the build version set via ldflags.
	version string
)

// cli carries state shared by the subcommands.
type cli struct {
	app     *app.App
	log     *zap.Logger
	verbose bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "dk",
		Short: "dk - manage the oroio key store",
		Long: `dk manages the encrypted API key store shared with the oroio daemon.

Keys are addressed by their 1-based position as printed by "dk list".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if c.verbose {
				l := logger.New()
				if err := l.Init(opts.LogLevel); err != nil {
					return err
				}
				c.log = l.Log
			}
			c.app, err = app.New(opts, c.log)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				_ = c.app.Close()
			}
			_ = c.log.Sync()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	config.RegisterFlags(root.PersistentFlags())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable log output")

	root.AddCommand(
		c.listCmd(),
		c.addCmd(),
		c.rmCmd(),
		c.useCmd(),
		c.currentCmd(),
		c.refreshCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
