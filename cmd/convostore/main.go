// Package main is the entry point for the convostore CLI.
package main

import (
	"os"

	"github.com/KafClaw/convostore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
