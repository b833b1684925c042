package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Dedup backends of the relayer
const (
	DedupStore  = "store"
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// Config represents the bridge service configuration
type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Deployments []string         `mapstructure:"deployments" validate:"required,min=1,dive,required"`
	Relayer     RelayerConfig    `mapstructure:"relayer"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Shutdown    ShutdownConfig   `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// AuthMaxSkew bounds the age of a signed admin request
	AuthMaxSkew time.Duration `mapstructure:"auth_max_skew" validate:"gt=0"`
	// JWKSURL enables bearer token auth for operators
	JWKSURL   string `mapstructure:"jwks_url" validate:"omitempty,url"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// Address returns the listen address of the server
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig contains database connection settings. When disabled the
// service keeps its state in memory.
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port           int    `mapstructure:"port" validate:"min=1,max=65535"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database" validate:"required_if=Enabled true"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"min=1"`
}

// RedisConfig contains redis connection settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// Address returns host:port of the redis server
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RelayerConfig contains message relaying settings
type RelayerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	DedupBackend      string        `mapstructure:"dedup_backend" validate:"oneof=store memory redis"`
	DedupTTL          time.Duration `mapstructure:"dedup_ttl" validate:"min=0"`
	DedupPrefix       string        `mapstructure:"dedup_prefix"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path" validate:"startswith=/"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Load loads configuration from file and environment variables. Environment
// variables use the BRIDGE prefix, e.g. BRIDGE_DATABASE_PASSWORD.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// manifests are found relative to the config file
	for i, path := range config.Deployments {
		if !filepath.IsAbs(path) {
			config.Deployments[i] = filepath.Join(filepath.Dir(configPath), path)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.auth_max_skew", "5m")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bridge")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "bridge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Relayer defaults
	v.SetDefault("relayer.enabled", true)
	v.SetDefault("relayer.dedup_backend", DedupStore)
	v.SetDefault("relayer.dedup_ttl", "168h")
	v.SetDefault("relayer.dedup_prefix", "bridge:relayed:")
	v.SetDefault("relayer.reconcile_interval", "5m")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	// Shutdown defaults
	v.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if config.Relayer.DedupBackend == DedupRedis && !config.Redis.Enabled {
		return fmt.Errorf("relayer.dedup_backend redis requires redis.enabled")
	}
	seen := make(map[string]struct{}, len(config.Deployments))
	for _, path := range config.Deployments {
		if _, ok := seen[path]; ok {
			return fmt.Errorf("deployment %s listed twice", path)
		}
		seen[path] = struct{}{}
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
