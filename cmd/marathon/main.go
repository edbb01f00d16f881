// Command marathon is the control plane's operational front door: a long
// running "serve" daemon plus a handful of one-shot operator commands
// (status, deploy, kill, gc run). There is no wire API, so the one-shot
// commands wire up the same backend components "serve" does and act
// directly against the shared repository.
package main

import (
	"fmt"
	"os"

	"github.com/kindling-sh/marathon/cmd/marathon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
