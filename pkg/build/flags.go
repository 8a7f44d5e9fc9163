// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded in the binary at link time:
//
//	go build -ldflags "-X signalmon/pkg/build.buildVersion=0.3.0 \
//	    -X signalmon/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X signalmon/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds carry no flags and report "dev" values.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildTime    string
	buildCommit  string
	buildVersion string
)

var info = Info{
	Name:        "signalmon",
	Description: "Decode, route and analyze ASCII instrument streams from a serial link",
	Time:        "unknown",
	Commit:      "unknown",
	Version:     "dev",
}

// Initialize copies the link-time flags into the Info returned by Get. It
// reports which flags are missing; the dev defaults stay in place for those.
func Initialize() error {
	var errs []error
	set := func(dst *string, v, flag string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is not set", flag))
			return
		}
		*dst = v
	}
	set(&info.Time, buildTime, "buildTime")
	set(&info.Commit, buildCommit, "buildCommit")
	set(&info.Version, buildVersion, "buildVersion")
	return errors.Join(errs...)
}

// Get returns the build information.
func Get() Info {
	return info
}
