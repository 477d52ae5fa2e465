// Package version carries the build metadata stamped into the binary.
package version

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = "<unknown>"
)
