// Package output provides formatters for displaying probe results.
//
// The console formatter renders single fetch results, extracted JSON
// fields, bench summaries with latency percentiles, and pool occupancy
// snapshots, with optional color via fatih/color.
package output
