package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/config"
	"github.com/chainsafe/rwa-bridge/pkg/migrations/bridgedb"
	"github.com/chainsafe/rwa-bridge/pkg/pgutil"
	mghelper "github.com/chainsafe/rwa-bridge/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	if flag.NArg() == 0 {
		mghelper.Exitf("no command provided")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading configuration file: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database, pgutil.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to connect to bridge database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Running bridge database migrations",
		zap.String("database", cfg.Database.Database),
		zap.String("command", flag.Arg(0)))

	migrator := migrate.NewMigrator(db, bridgedb.Migrations)
	if err := mghelper.RunMigrations(ctx, migrator, logger, flag.Args()...); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
}
