package version

import "fmt"

// Overridden at build time with -ldflags "-X".
var (
	CLIName    = "defi-agent"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", CLIName, CLIVersion, Commit, BuildDate)
}

// UserAgent identifies outbound requests to providers.
func UserAgent() string {
	return CLIName + "/" + CLIVersion
}
