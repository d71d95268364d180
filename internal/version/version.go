// Package version carries build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func String() string {
	return fmt.Sprintf("reportbrief %s (commit: %s, built: %s, %s)", Version, GitCommit, BuildDate, runtime.Version())
}
