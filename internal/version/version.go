// Package version holds the build metadata of projd.
package version

// These variables can be overridden at build time using ldflags:
// go build -ldflags "-X projd/internal/version.Version=1.0.0 -X projd/internal/version.Commit=abc123"
var (
	// Version is the semantic version of projd
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "projd version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
