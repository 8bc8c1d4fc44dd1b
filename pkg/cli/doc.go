// Package cli provides terminal helpers for the robocare command-line tool.
//
// This package includes:
//   - Output formatting (YAML, JSON, raw) with optional jq filtering
//   - Chat transcript rendering with lipgloss
//   - Loading YAML/JSON input files
//
// Example usage:
//
//	cli.Output(messages, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  ".[] | select(.sender == \"bot\") | .text",
//	})
package cli
