package version

// Overridden at build time via -ldflags "-X docrag/internal/version.Version=..."
var (
	Version = "0.1.0"
	Commit  = "dev"
)

func String() string {
	return "docrag " + Version + " (" + Commit + ")"
}
