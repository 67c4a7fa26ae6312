// Package main is the entry point for the track1 controller CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/track1-autonomy/internal/config"
)

// #region root

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "controller",
		Short: "Closed-loop pick-and-place controller",
		Long: `controller runs the perceive-plan-act loop against the simulated robot.

Commands:
  run     Run one or more demo episodes with live telemetry
  trials  Run randomized trials and write a CSV summary
  tail    Follow a JSONL telemetry file
  dash    Watch episodes in a terminal dashboard

Settings come from --config (.yaml or .toml), then TRACK1_* environment
variables, then command-line flags.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("TRACK1_CONFIG"), "config file (.yaml, .yml or .toml)")

	root.AddCommand(newRunCmd(g), newTrialsCmd(g), newTailCmd(), newDashCmd(g))
	return root
}

// load reads the config file and environment.
func (g *globalFlags) load() (config.Config, error) {
	return config.Load(g.configPath)
}

// #endregion root

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
