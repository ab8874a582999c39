package version

// Build metadata, overridden at release time via -ldflags.
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildTime = "unknown"
)

// Short returns the bare semantic version.
func Short() string {
	return Version
}

// Full renders the version together with the commit and build timestamp.
func Full() string {
	return "version: " + Version + ", commit: " + Commit + ", built at: " + BuildTime
}
