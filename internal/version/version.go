// Package version exposes build metadata injected at link time:
//
//	go build -ldflags "-X github.com/HerbHall/tunnelwatch/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Info returns a one-line human readable build description.
func Info() string {
	return fmt.Sprintf("TunnelWatch %s (commit %s, built %s, %s %s/%s)",
		Version, shortCommit(), BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Map returns build metadata for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

func shortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}
