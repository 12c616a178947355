// Package version carries build metadata, set via -ldflags at build
// time, and prints a short startup banner.
package version

import (
	"fmt"
	"log"
)

var (
	Name        = "streamrelay"
	Authors     = "streamrelay contributors"
	Description = "HTTP proxy that decodes, probes and streams upstream targets"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	HomeText = "github.com/streamrelay/proxy"
	HomeURI  = "https://github.com/streamrelay/proxy"
)

// PrintVersionInfo logs a short startup banner. With extendedInfo it
// also includes the commit, build date and builder.
func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	vlog.Printf("%s %s - %s", Name, Version, Description)
	vlog.Printf("%s", HomeURI)

	if extendedInfo {
		vlog.Printf("commit: %s", Commit)
		vlog.Printf(" built: %s", Date)
		vlog.Printf(" using: %s", User)
	}
}

// String returns a single-line identifier, e.g. for a User-Agent or
// /info response.
func String() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}
