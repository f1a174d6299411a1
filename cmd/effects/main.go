// Command effects inspects, prefetches and dry-runs animation scenes.
package main

import (
	"os"

	"github.com/go-drift/effects/cmd/effects/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
