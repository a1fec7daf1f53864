// Package main is the single-binary entrypoint for rivals.
package main

import "github.com/tutu-network/rivals/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
