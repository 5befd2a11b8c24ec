// Package version reports the build's version and VCS revision.
//
//	go build -ldflags "-X github.com/ramonehamilton/Pokedex-Companion/internal/version.Version=v1.2.3"
package version

import (
	"runtime/debug"
	"sync"
)

// Version is set at link time. Unset builds report "dev".
var Version = "dev"

var revision = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev == "" {
		return ""
	}
	return rev + dirty
})

// GetVersion returns Version, followed by the VCS revision when the binary
// was built from a checkout.
func GetVersion() string {
	if rev := revision(); rev != "" {
		return Version + "+" + rev
	}
	return Version
}
