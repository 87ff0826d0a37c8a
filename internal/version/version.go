// Package version reports the build version. Release builds set Version with
// -ldflags "-X github.com/kingrea/thinkpilot/internal/version.Version=v1.2.3".
package version

// Version is the running build.
var Version = "dev"
