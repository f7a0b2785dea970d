// wardenctl is the unprivileged controller for the warden worker. All
// command logic lives in internal/cli; this entry point only dispatches.
package main

import (
	"fmt"
	"os"

	"github.com/wardenhq/warden/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
