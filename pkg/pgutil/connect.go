package pgutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/config"
)

const (
	defaultPingTimeout = 10 * time.Second
	connMaxIdleTime    = 5 * time.Minute
)

type connectOptions struct {
	logger      *zap.Logger
	pingTimeout time.Duration
}

// Option configures ConnectDB
type Option func(*connectOptions)

// WithLogger logs the established connection
func WithLogger(logger *zap.Logger) Option {
	return func(o *connectOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPingTimeout bounds the initial connectivity check
func WithPingTimeout(d time.Duration) Option {
	return func(o *connectOptions) {
		if d > 0 {
			o.pingTimeout = d
		}
	}
}

// ConnectDB opens a pooled connection to the configured postgres database
// and verifies it is reachable.
func ConnectDB(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*bun.DB, error) {
	o := connectOptions{logger: zap.NewNop(), pingTimeout: defaultPingTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	// functional options escape special characters in credentials
	connector := pgdriver.NewConnector(
		pgdriver.WithNetwork("tcp"),
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.Database),
		pgdriver.WithInsecure(cfg.SSLMode == "disable"),
		pgdriver.WithApplicationName("rwa-bridge"),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxConnections)
	sqldb.SetMaxIdleConns(cfg.MaxConnections)
	sqldb.SetConnMaxIdleTime(connMaxIdleTime)
	db := bun.NewDB(sqldb, pgdialect.New())

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Database, err)
	}

	o.logger.Info("Connected to database",
		zap.String("database", cfg.Database),
		zap.String("host", cfg.Host),
		zap.Int("max_connections", cfg.MaxConnections))
	return db, nil
}
