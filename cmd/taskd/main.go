// Command taskd runs the self-hosted job execution platform: a cron
// scheduler over Python/Node scripts, HTTP API probes, and git
// subscription syncs, with live log streaming over websockets.
package main

import (
	"fmt"
	"os"

	"github.com/scriptyard/taskd/cmd/taskd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
