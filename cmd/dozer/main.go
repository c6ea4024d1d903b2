// Command dozer wakes a sleeping compute host on demand, proxies to it, and
// puts it back to sleep when idle.
package main

import (
	"github.com/rileyhilliard/dozer/internal/cli"
)

// Set at release time:
//
//	go build -ldflags "-X main.version=v0.3.0 -X main.commit=$(git rev-parse --short HEAD) -X main.date=$(date -u +%F)" ./cmd/dozer
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	cli.Execute()
}
