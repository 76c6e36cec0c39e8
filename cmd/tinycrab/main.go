// Command tinycrab is the supervisor-facing CLI: spawn, list, stop, chat,
// status, and configure.
package main

import (
	"fmt"
	"os"

	"github.com/tinycrab/tinycrab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
