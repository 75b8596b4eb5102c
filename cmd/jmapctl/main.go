// Command jmapctl runs batch scenarios, validates client configuration, and
// checks connectivity to a JMAP server.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/jmap/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
