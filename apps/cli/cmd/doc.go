// Package cmd implements the tickfetch CLI commands using Cobra.
//
// Available commands:
//   - fetch: Probe one endpoint and print or archive the result
//   - bench: Run a fixed-duration latency benchmark
//   - watch: Re-probe a target list whenever its file changes
//   - archive: Inspect exchanges stored by --archive
//   - version: Show tickfetch version information
//
// Global flags select the config file, verbose logging, and colored
// output.
package cmd
