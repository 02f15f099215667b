package build

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	_ "embed"
)

//go:embed VERSION
var rawVersion []byte

// Build information.
var (
	Version   = strings.TrimSpace(string(rawVersion))
	GoVersion = runtime.Version()
	Platform  = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	StartTime = time.Now()
)

// Info contains build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Uptime    string `json:"uptime"`
}

// GetBuildInfo returns build information. The commit is read from the VCS
// stamp the toolchain embeds, empty when built outside a checkout.
func GetBuildInfo() Info {
	return Info{
		Version:   Version,
		Commit:    vcsRevision(),
		GoVersion: GoVersion,
		Platform:  Platform,
		Uptime:    time.Since(StartTime).String(),
	}
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

// String returns string representation of build info.
func (i Info) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Version: %s\n", i.Version))

	if i.Commit != "" {
		sb.WriteString(fmt.Sprintf("Commit: %s\n", i.Commit))
	}

	sb.WriteString(fmt.Sprintf("Go Version: %s\n", i.GoVersion))
	sb.WriteString(fmt.Sprintf("Platform: %s\n", i.Platform))
	sb.WriteString(fmt.Sprintf("Uptime: %s\n", i.Uptime))

	return sb.String()
}
