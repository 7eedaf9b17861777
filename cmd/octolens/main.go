package main

import (
	"github.com/namelens/octolens/internal/cmd"
	"github.com/namelens/octolens/internal/observability"
	"github.com/namelens/octolens/internal/server/handlers"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2025-10-28"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version info for commands to access
	cmd.SetVersionInfo(version, commit, buildDate)

	// Set version info for HTTP handlers
	handlers.SetVersionInfo(version, commit, buildDate)

	err := cmd.Execute()
	observability.Sync()
	if err != nil {
		// Commands silence cobra's own error output, so report here.
		cmd.ExitWithCodeStderr(cmd.ExitCodeForError(err), "Command failed", err)
	}
}
