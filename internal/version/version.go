// Package version holds build metadata for serialbridge.
package version

import (
	"runtime"
	"runtime/debug"
)

// Name identifies the bridge to NATS and in the OpenAPI document.
const Name = "serialbridge"

// Set with -ldflags "-X github.com/smazurov/serialbridge/internal/version.Version=...".
// GitCommit and BuildDate fall back to the VCS stamp of the binary.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildSettings(&info, bi.Settings)
	}
	return info
}

func applyBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
}

// UserAgent returns "serialbridge/<version>".
func UserAgent() string {
	return Name + "/" + Version
}
