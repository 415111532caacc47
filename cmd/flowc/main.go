// Package main implements the flowc CLI. It lowers functions of a small C
// subset to flat basic blocks and rebuilds structured control flow from
// them.
package main

import (
	"os"

	"github.com/l3aro/go-flowc/cmd/flowc/commands"
)

var version = "dev"

func main() {
	commands.Version = version
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
