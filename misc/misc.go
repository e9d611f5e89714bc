// Package misc holds small helpers shared by all commands.
package misc

import (
	"runtime/debug"
	"strings"
)

const appName = "sdoc"

// GetAppName returns short program name used for logging, temporary files and
// generated artifacts.
func GetAppName() string {
	return appName
}

// GetVersion returns module version as recorded by the build system.
func GetVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "(devel)"
}

// GetGitHash returns VCS revision recorded by the build system, shortened to
// the usual 12 characters.
func GetGitHash() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var rev, dirty string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "*"
			}
		}
	}
	if rev == "" {
		return "unknown"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev + dirty
}

// TrimVersionPrefix removes leading "v" from semantic version strings for
// display purposes.
func TrimVersionPrefix(ver string) string {
	return strings.TrimPrefix(ver, "v")
}
