// Package commands implements taskd's CLI using cobra: serve the
// scheduler, or trigger/inspect a Task, Probe, or Subscription by hand.
package commands

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./taskd.yaml"

var configPath string

// Execute builds the root command and runs it.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskd",
		Short: "Self-hosted job execution platform",
		Long: `taskd runs cron-scheduled Python/Node scripts, HTTP API
probes, and git repository sync jobs, streaming live output over
websockets and recording every run to its store.

Examples:
  taskd serve
  taskd task run <id>
  taskd probe run <id>
  taskd sub run <id>`,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the taskd config file")

	root.AddCommand(
		newServeCmd(),
		newTaskCmd(),
		newProbeCmd(),
		newSubCmd(),
		newVersionCmd(),
	)
	return root
}
