// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X handbeat/pkg/build.buildVersion=0.3.0 \
//	    -X handbeat/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X handbeat/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds carry no flags and report "dev" values.
package build

import (
	"errors"
	"fmt"
)

// Info is the build metadata shown by --version and logged at startup.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line, e.g. "handbeat 0.3.0 (abc123, 2026-01-02)".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = devInfo()
)

func devInfo() *Info {
	return &Info{
		Name:        "handbeat",
		Description: "Gesture-driven procedural techno engine",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags values into the build info. Flags that were
// not set keep their development value and are reported in the returned
// error, so callers may log it and carry on.
func Initialize() error {
	var errs []error
	set := func(dst *string, v, flag string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is not set", flag))
			return
		}
		*dst = v
	}
	set(&buildInfo.Name, buildName, "buildName")
	set(&buildInfo.Time, buildTime, "buildTime")
	set(&buildInfo.Commit, buildCommit, "buildCommit")
	set(&buildInfo.Version, buildVersion, "buildVersion")
	return errors.Join(errs...)
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() Info {
	return *buildInfo
}
