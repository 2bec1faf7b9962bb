// Package version tracks build metadata for the application.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Info describes how the running binary was built.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

var (
	mu   sync.RWMutex
	info = Info{Version: "dev", GoVersion: runtime.Version()}
)

// Set records metadata injected at link time. Fields left empty are
// backfilled from the embedded build info where possible.
func Set(v Info) {
	if v.Version == "" {
		v.Version = "dev"
	}
	if v.GoVersion == "" {
		v.GoVersion = runtime.Version()
	}
	if v.Commit == "" {
		v.Commit = vcsRevision()
	}

	mu.Lock()
	defer mu.Unlock()
	info = v
}

// Current returns the metadata of the running binary.
func Current() Info {
	mu.RLock()
	defer mu.RUnlock()
	return info
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range bi.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}
