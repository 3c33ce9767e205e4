// Command ruleweave compiles, checks and runs declarative reaction, state
// and augmentation rules.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ruleweave/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
