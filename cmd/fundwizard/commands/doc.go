// Package commands defines the fundwizard CLI.
//
// Commands
//
//   - serve     Run the HTTP API with scheduled sweeps
//   - sweep     Purge expired drafts from a SQL backing once
//   - config    Print the effective configuration
//
// The root command loads the configuration and the logger before any
// subcommand runs; serve builds the full dependency graph from them.
package commands
