// Command txrelay runs and operates a transaction relay node.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/txrelay/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "txrelay:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
