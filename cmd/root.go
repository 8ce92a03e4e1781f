package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cexll/session-notes/internal/app"
	"github.com/cexll/session-notes/internal/config"
)

// cli carries configuration shared by all subcommands. App is set once
// the configuration has been loaded.
type cli struct {
	v       *viper.Viper
	cfgFile string
	*app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "session-notes",
		Short: "Keep one cumulative SESSION NOTES comment on a pull request",
		Long: `session-notes merges a summary of the current Codex or Claude Code session
into a single, continuously updated comment on the pull request. Reruns
replace the session's entry in place; other sessions' entries are kept.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(cmd.ErrOrStderr())
			// Load .env file (ignore error if file doesn't exist)
			_ = loadDotEnv()
			return config.Init(c.v, c.cfgFile)
		},
	}
	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file (default is $HOME/.config/session-notes/config.yaml)")

	root.AddCommand(
		newUpsertCmd(c),
		newSessionsCmd(c),
		newServeCmd(c),
		newConfigCmd(c),
	)
	return root
}

// load binds the given flags (viper key -> flag name) and reads the config.
func (c *cli) load(cmd *cobra.Command, flags map[string]string) error {
	for key, name := range flags {
		if err := c.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	cfg, err := config.Load(c.v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c.App = &app.App{Config: cfg, Runner: commandRunner, Version: version}
	return nil
}
