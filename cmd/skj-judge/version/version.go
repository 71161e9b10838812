// Package version reports the build version of the binaries. A version.txt
// written by go generate takes precedence over the module build info.
package version

import (
	"embed"
	"io/fs"
	"runtime"
	"runtime/debug"
	"strings"
)

//go:generate sh -c "git describe --tags --always > version.txt"

//go:embed version.*
var versions embed.FS

// Version is the build version, or a placeholder when unknown
var Version = "unknown"

func init() {
	if b, err := fs.ReadFile(versions, "version.txt"); err == nil {
		Version = strings.TrimSpace(string(b))
		return
	}
	// installed by go install
	if inf, ok := debug.ReadBuildInfo(); ok && inf.Main.Version != "" {
		Version = inf.Main.Version
	}
}

// Info describes the running binary
type Info struct {
	BuildVersion string `json:"buildVersion"`
	GoVersion    string `json:"goVersion"`
	Platform     string `json:"platform"`
	OS           string `json:"os"`
}

// Get returns the version info of the running binary
func Get() Info {
	return Info{
		BuildVersion: Version,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOARCH,
		OS:           runtime.GOOS,
	}
}
