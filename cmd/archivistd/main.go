// Command archivistd runs the archivist daemon: it watches the catalog for
// pending items, drives the enrichment pipeline, and serves CLI requests over
// a unix socket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"archivist/internal/config"
	"archivist/internal/daemonrun"
)

func main() {
	var configPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "Configuration file path")
	flag.StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: logLevel}); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
