// Command lazybridge runs and explains query pipelines described in YAML or
// JSON files.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
