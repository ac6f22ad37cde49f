// Package versioninfo holds build metadata injected at link time.
package versioninfo

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at release build time; defaults identify dev builds.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns the one-line version string printed by --version.
func Short() string {
	return fmt.Sprintf("patchllm %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}
