// Package version holds build metadata of the hydraql binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build metadata, overridden at link time with -ldflags "-X ...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	develVersion   = "(devel)"
	settingCommit  = "vcs.revision"
	settingTime    = "vcs.time"
	shortCommitLen = 12
)

// InitBinaryVersion fills metadata that was not set at link time from the
// build info embedded by the Go toolchain.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != develVersion {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case settingCommit:
			if Commit == "none" && setting.Value != "" {
				Commit = setting.Value[:min(len(setting.Value), shortCommitLen)]
			}
		case settingTime:
			if Date == "unknown" && setting.Value != "" {
				Date = setting.Value
			}
		}
	}
}

// String formats the metadata for the version command.
func String() string {
	return fmt.Sprintf("hydraql %s (commit: %s, built: %s)", Version, Commit, Date)
}
