// Package version reports the sitekit version stamped at link time, falling
// back to the module and VCS data the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set with -ldflags "-X github.com/conneroisu/sitekit/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	Dirty     bool      `json:"dirty,omitempty"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

// GetBuildInfo collects the version, commit and toolchain of the binary.
func GetBuildInfo() *BuildInfo {
	info := &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GitCommit,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	settings := vcsSettings()
	if info.GitCommit == "" || info.GitCommit == "unknown" {
		info.GitCommit = settings["vcs.revision"]
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseBuildTime(settings["vcs.time"])
	}
	info.Dirty = settings["vcs.modified"] == "true"
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	return info
}

// GetVersion returns the release version, or "dev" for local builds.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}

// GetShortVersion returns "v1.2.3 (abcdef0)" for releases and "dev-abcdef0"
// for local builds.
func GetShortVersion() string {
	info := GetBuildInfo()
	if info.GitCommit == "unknown" || len(info.GitCommit) < 7 {
		return info.Version
	}
	short := info.GitCommit[:7]
	if info.Version == "dev" {
		if info.Dirty {
			return "dev-" + short + "+dirty"
		}
		return "dev-" + short
	}
	return fmt.Sprintf("%s (%s)", info.Version, short)
}

// GetDetailedVersion is the multi-line output of `sitekit version --detailed`.
func GetDetailedVersion() string {
	info := GetBuildInfo()

	lines := []string{"sitekit " + info.Version}
	if info.GitCommit != "unknown" {
		commit := info.GitCommit
		if info.Dirty {
			commit += " (modified)"
		}
		lines = append(lines, "Commit:   "+commit)
	}
	if !info.BuildTime.IsZero() {
		lines = append(lines, "Built:    "+info.BuildTime.UTC().Format(time.RFC3339))
	}
	lines = append(lines,
		"Go:       "+info.GoVersion,
		"Platform: "+info.Platform,
	)
	return strings.Join(lines, "\n")
}

func vcsSettings() map[string]string {
	out := make(map[string]string)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			out[s.Key] = s.Value
		}
	}
	return out
}

var buildTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range buildTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
