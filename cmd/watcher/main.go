package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lumenpay/credits-middleware/pkg/app/watcher"
	"github.com/lumenpay/credits-middleware/pkg/config"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := watcher.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watcher exited with error: %v\n", err)
		os.Exit(1)
	}
}
