// Package bridged implements app.Runner for the bridge service process.
package bridged

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/admin/service"
	"github.com/chainsafe/rwa-bridge/pkg/app"
	apphttp "github.com/chainsafe/rwa-bridge/pkg/app/http"
	"github.com/chainsafe/rwa-bridge/pkg/auth"
	"github.com/chainsafe/rwa-bridge/pkg/config"
	"github.com/chainsafe/rwa-bridge/pkg/db"
	"github.com/chainsafe/rwa-bridge/pkg/deploy"
	"github.com/chainsafe/rwa-bridge/pkg/network"
	"github.com/chainsafe/rwa-bridge/pkg/pgutil"
	"github.com/chainsafe/rwa-bridge/pkg/relayer"
)

const redisPingTimeout = 5 * time.Second

var _ app.Runner = (*Server)(nil)

// Server holds configuration for the bridge process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new bridge Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run deploys the configured bridges, starts relaying and serves the API.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting RWA bridge service", zap.Strings("deployments", cfg.Deployments))

	store, closeStore, err := s.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = connectRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		logger.Info("Redis connection established", zap.String("address", cfg.Redis.Address()))
	}

	deployed, err := LoadNetwork(cfg.Deployments, logger)
	if err != nil {
		return err
	}
	if err := service.RestoreState(ctx, deployed, store, logger); err != nil {
		return fmt.Errorf("restore bridge state: %w", err)
	}

	var (
		retrier service.Retrier
		ready   = func() bool { return true }
	)
	if cfg.Relayer.Enabled {
		engine, err := relayer.NewEngine(store, deployed.RelayPaths(),
			relayer.WithLogger(logger),
			relayer.WithDeduper(newDeduper(&cfg.Relayer, store, redisClient)),
			relayer.WithReconcileInterval(cfg.Relayer.ReconcileInterval),
		)
		if err != nil {
			return fmt.Errorf("create relayer engine: %w", err)
		}
		if err := engine.Start(ctx); err != nil {
			return fmt.Errorf("start relayer engine: %w", err)
		}
		defer engine.Stop()
		retrier, ready = engine, engine.IsReady
	} else {
		logger.Warn("Relayer disabled; transfers must be delivered by another process")
	}

	svc := service.NewLog(service.NewService(deployed, store, retrier, logger), logger)
	authOpts := []auth.VerifierOption{auth.WithLogger(logger)}
	if cfg.Server.JWKSURL != "" {
		authOpts = append(authOpts, auth.WithJWT(auth.NewJWTValidator(cfg.Server.JWKSURL, cfg.Server.JWTIssuer)))
		logger.Info("Bearer token auth enabled", zap.String("jwks_url", cfg.Server.JWKSURL))
	}
	verifier := auth.NewVerifier(cfg.Server.AuthMaxSkew, authOpts...)
	router := newRouter(cfg, svc, verifier, ready, logger)

	return apphttp.Serve(ctx, apphttp.NewServer(&cfg.Server, router), cfg.Shutdown.Timeout, logger)
}

// openStore connects postgres when enabled and falls back to memory
func (s *Server) openStore(ctx context.Context, logger *zap.Logger) (db.Store, func(), error) {
	if !s.cfg.Database.Enabled {
		logger.Warn("Database disabled; bridge state is kept in memory only")
		return db.NewMemoryStore(), func() {}, nil
	}
	bunDB, err := pgutil.ConnectDB(ctx, &s.cfg.Database, pgutil.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("connect bridge db: %w", err)
	}
	return db.NewStore(bunDB), func() { _ = bunDB.Close() }, nil
}

func connectRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address(), err)
	}
	return client, nil
}

// LoadNetwork parses every deployment manifest and deploys them together
func LoadNetwork(paths []string, logger *zap.Logger) (*network.Network, error) {
	if len(paths) == 0 {
		return nil, errors.New("no deployments configured")
	}
	manifests := make([]*deploy.Manifest, 0, len(paths))
	for _, path := range paths {
		m, err := deploy.Load(path)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	n, err := network.Build(manifests, network.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("deploy network: %w", err)
	}
	logger.Info("Network deployed",
		zap.Strings("chains", n.Chains()),
		zap.Strings("bridges", n.BridgeIDs()))
	return n, nil
}

// newDeduper picks the relay dedup backend. A redis client is required for
// the redis backend; config validation guarantees it.
func newDeduper(cfg *config.RelayerConfig, store db.Store, client redis.UniversalClient) relayer.Deduper {
	switch cfg.DedupBackend {
	case config.DedupRedis:
		return relayer.NewRedisDeduper(client, cfg.DedupPrefix, cfg.DedupTTL)
	case config.DedupMemory:
		return relayer.NewMemoryDeduper()
	default:
		return relayer.NewStoreDeduper(store)
	}
}

func newRouter(cfg *config.Config, svc service.Service, verifier *auth.Verifier, ready func() bool, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle(cfg.Monitoring.MetricsPath, promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", cfg.Monitoring.MetricsPath))
	}

	r.Route("/api/v1", func(r chi.Router) {
		service.RegisterRoutes(r, svc, verifier, logger)
	})

	return r
}

// accessLog logs each request through zap
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
