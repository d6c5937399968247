package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set via -ldflags "-X .../commands.version=..." in release
// builds; it stays "dev" for local builds.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("taskd " + version)
			return nil
		},
	}
}
