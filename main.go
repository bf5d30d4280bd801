// Package main is the entry point for the fixbench CLI.
package main

import "fixbench.dev/pkg/fixbench/cmd"

func main() {
	cmd.Execute()
}
