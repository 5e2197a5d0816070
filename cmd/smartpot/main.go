// Smart Pot Core - plant monitoring backend
//
// Serves the REST API that pots, apps and dashboards use to manage pots,
// plants and their sensor readings. Readings can also arrive over MQTT and
// be mirrored to InfluxDB.
package main

import (
	"fmt"
	"os"

	_ "github.com/nerrad567/smartpot-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
