// Package cmd implements the command-line interface for calpane.
//
// This package provides the following commands:
//   - serve: Start the local web UI
//   - index list: Print the ids of events created through calpane
//   - index clear: Forget every recorded id
//   - version: Display version information
package cmd
