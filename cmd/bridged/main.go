package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/rwa-bridge/pkg/app/bridged"
	"github.com/chainsafe/rwa-bridge/pkg/config"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := bridged.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Bridge service failed: %v\n", err)
		os.Exit(1)
	}
}
