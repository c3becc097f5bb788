// Package main is the entry point for the medvox CLI.
//
// Usage:
//
//	medvox [flags] <command> [args]
//
// Commands:
//
//	devices    - List audio capture devices
//	record     - Record a dictation session
//	enroll     - Enroll a speaker from a voice sample
//	identify   - Identify speakers in a rendered session
//	profiles   - Manage voice profiles (list, delete, rename)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/medvox/medvox/cmd/medvox/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
