package common

import "fmt"

// Build metadata, stamped via -ldflags at release time. Dev builds keep the
// defaults.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version.
func GetVersion() string { return Version }

// GetBuild returns the build timestamp.
func GetBuild() string { return Build }

// GetGitCommit returns the commit the binary was built from.
func GetGitCommit() string { return GitCommit }

// GetFullVersion renders version plus build metadata for crash reports and
// the version endpoint.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build %s, commit %s)", Version, Build, GitCommit)
}
