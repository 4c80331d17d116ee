// Package main provides the entry point for chatmesh-cli, the operator
// tool for a ChatMesh deployment.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/chatmesh-go/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
