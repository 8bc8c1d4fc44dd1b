// Package main is the entry point for the robocare CLI.
//
// Usage:
//
//	robocare [flags] <command> [subcommand] [args]
//
// Commands:
//
//	chat        - Interactive conversation with Robo
//	ask         - Ask one question and print the answer
//	image       - Upload a photo for analysis
//	profile     - Show or submit the health profile
//	transcript  - List and show saved conversations
//	serve       - Serve a session to browsers over a websocket
//	config      - Configuration management (contexts, services)
//	version     - Show version information
package main

import (
	"os"

	"github.com/haivivi/robocare/cmd/robocare/commands"
	"github.com/haivivi/robocare/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
