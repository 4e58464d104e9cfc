package version

// Populated at build time via -ldflags.
var (
	GitRelease = "dev"
	GitCommit  = "unknown"
)
