package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule  = "pkt.systems/termplex"
	unknownVersion = "v0.0.0-unknown"
)

// buildVersion is set via -ldflags "-X pkt.systems/termplex/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the best available version string without a dirty suffix.
func Current() string {
	info, ok := debug.ReadBuildInfo()
	return resolve(buildVersion, info, ok, false)
}

// CurrentWithDirty is Current with the "+dirty" suffix kept.
func CurrentWithDirty() string {
	info, ok := debug.ReadBuildInfo()
	return resolve(buildVersion, info, ok, true)
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// String formats module, version and toolchain on one line.
func String() string {
	return fmt.Sprintf("%s %s (%s %s/%s)", Module(), CurrentWithDirty(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func resolve(stamped string, info *debug.BuildInfo, ok bool, includeDirty bool) string {
	candidates := []string{stamped}
	if ok && info != nil {
		if v := strings.TrimSpace(info.Main.Version); v != "(devel)" {
			candidates = append(candidates, v)
		}
		candidates = append(candidates, vcsPseudoVersion(info))
	}
	for _, candidate := range candidates {
		if v := strings.TrimSpace(candidate); v != "" {
			if !includeDirty {
				v = strings.TrimSuffix(v, "+dirty")
			}
			return v
		}
	}
	return unknownVersion
}

// vcsPseudoVersion builds a Go pseudo-version from the stamped VCS settings.
func vcsPseudoVersion(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	revision, stamp := settings["vcs.revision"], settings["vcs.time"]
	if revision == "" || stamp == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
	if settings["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}
