// Package migrations holds schema helpers and the migrate command runner
package migrations

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

const usageText = `Usage:
  go run cmd/bridged/migrate/main.go [flags] <command>

Commands:
  init    create the migration bookkeeping tables
  up      apply all pending migrations
  down    roll back the last migration group
  status  print applied and pending migrations
  unlock  release a lock left behind by an interrupted run

Example:
  go run cmd/bridged/migrate/main.go -config config.yaml up

Flags:
`

// Usage prints command usage and exits
func Usage() {
	fmt.Fprint(os.Stderr, usageText)
	flag.PrintDefaults()
	os.Exit(2)
}

// Exitf prints the message followed by usage and exits
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	Usage()
}

// CreateSchema creates the tables of models when they do not exist yet
func CreateSchema(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// DropTables drops the tables of models and everything depending on them
func DropTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", model, err)
		}
	}
	return nil
}

// CreateIndex creates a named index on table
func CreateIndex(ctx context.Context, db bun.IDB, table, index, columns string) error {
	_, err := db.NewCreateIndex().Table(table).Index(index).Column(columns).IfNotExists().Exec(ctx)
	return err
}

// CreateModelIndexes creates one idx_<table>_<column> index per column
func CreateModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	if model == nil {
		return fmt.Errorf("model cannot be nil")
	}
	table := db.NewCreateIndex().Model(model).GetTableName()
	if table == "" {
		return fmt.Errorf("failed to resolve table name for model %T", model)
	}
	prefix := "idx_" + strings.NewReplacer(`"`, "", ".", "_").Replace(table) + "_"

	for _, column := range columns {
		_, err := db.NewCreateIndex().Model(model).Index(prefix + column).Column(column).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index on %s(%s): %w", table, column, err)
		}
	}
	return nil
}

type command func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error

var commands = map[string]command{
	"init": func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		if err := m.Init(ctx); err != nil {
			return err
		}
		logger.Info("Migration tables created")
		return nil
	},
	"up": locked(func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		group, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		if group.IsZero() {
			logger.Info("Database is up to date")
			return nil
		}
		logger.Info("Migrated", zap.String("group", group.String()))
		return nil
	}),
	"down": locked(func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		group, err := m.Rollback(ctx)
		if err != nil {
			return err
		}
		if group.IsZero() {
			logger.Info("No migrations to roll back")
			return nil
		}
		logger.Info("Rolled back", zap.String("group", group.String()))
		return nil
	}),
	"status": func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		ms, err := m.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}
		logger.Info("Migration status",
			zap.Stringer("migrations", ms),
			zap.Stringer("unapplied", ms.Unapplied()),
			zap.Stringer("last_group", ms.LastGroup()))
		return nil
	},
	"unlock": func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		if err := m.Unlock(ctx); err != nil {
			return err
		}
		logger.Warn("Migration lock released")
		return nil
	},
}

// locked holds the migration lock for the duration of fn
func locked(fn command) command {
	return func(ctx context.Context, m *migrate.Migrator, logger *zap.Logger) error {
		if err := m.Lock(ctx); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer func() {
			if err := m.Unlock(ctx); err != nil {
				logger.Error("Failed to release migration lock", zap.Error(err))
			}
		}()
		return fn(ctx, m, logger)
	}
}

// RunMigrations runs the command named by args[0]
func RunMigrations(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger, args ...string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command provided")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return cmd(ctx, migrator, logger)
}
