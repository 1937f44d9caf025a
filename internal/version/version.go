// Package version holds the build-time version metadata for the sme binary.
// Values are injected via -ldflags at release build time and default to
// development placeholders for local builds.
package version

var (
	// Version is the semantic version of the build (e.g. "v0.3.1").
	Version = "dev"
	// Commit is the short git commit hash the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)
