// Package version exposes build information stamped in at link time
// via -ldflags "-X".
package version

//nolint:revive // Overwritten by the build.
var (
	Version = "dev"
	Commit  = "unknown"
)
