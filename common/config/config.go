package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// MinPollInterval is the floor for release polling. Anything lower is
	// clamped so a misconfigured deployment cannot hammer the provider.
	MinPollInterval = 5 * time.Minute

	// DefaultRestartDelay gives in-flight HTTP responses time to complete
	// before the process replaces itself.
	DefaultRestartDelay = 5 * time.Second
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Update    UpdateConfig
	Backup    BackupConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	Version     string
	AdminToken  string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// UpdateConfig holds release-source and pipeline settings
type UpdateConfig struct {
	Enabled        bool
	Source         string // "github" or "yunxiao"
	Repo           string
	YunxiaoRepo    string
	Token          string
	TargetOverride string
	PollInterval   time.Duration
	FetchTimeout   time.Duration

	ProjectRoot   string
	DownloadRoot  string
	PreservePaths []string

	DepsCommand     string
	MigrateCommand  string
	MigrateScript   string
	CommandTimeout  time.Duration
	DownloadTimeout time.Duration
	RestartDelay    time.Duration
}

// BackupConfig holds pre-update database backup settings
type BackupConfig struct {
	Dir        string
	Command    string
	Candidates []string
}

// CacheConfig holds release metadata cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// TelemetryConfig holds profiling settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			Version:     getEnv("APP_VERSION", "0.0.0"),
			AdminToken:  getEnv("UPDATE_ADMIN_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "otrs"),
			User:        getEnv("POSTGRES_USER", "otrs"),
			Password:    getEnv("POSTGRES_PASSWORD", "otrs"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 10),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Update: UpdateConfig{
			Enabled:        getEnvBool("UPDATE_ENABLED", true),
			Source:         getEnv("UPDATE_SOURCE", "github"),
			Repo:           getEnv("UPDATE_REPO", "scaleflower/otrs-web"),
			YunxiaoRepo:    getEnv("UPDATE_YUNXIAO_REPO", ""),
			Token:          getEnv("UPDATE_TOKEN", ""),
			TargetOverride: getEnv("UPDATE_TARGET_VERSION", ""),
			PollInterval:   getEnvDuration("UPDATE_POLL_INTERVAL", 1*time.Hour),
			FetchTimeout:   getEnvDuration("UPDATE_FETCH_TIMEOUT", 30*time.Second),

			ProjectRoot:  getEnv("UPDATE_PROJECT_ROOT", "."),
			DownloadRoot: getEnv("UPDATE_DOWNLOAD_ROOT", "downloads"),
			PreservePaths: getEnvSlice("UPDATE_PRESERVE_PATHS", []string{
				".env",
				"config/secrets.cfg",
				"uploads/",
				"logs/",
				"data/",
				"database_backups/",
			}),

			DepsCommand:     getEnv("UPDATE_DEPS_COMMAND", "scripts/install_deps.sh"),
			MigrateCommand:  getEnv("UPDATE_MIGRATE_COMMAND", "scripts/migrate.sh"),
			MigrateScript:   getEnv("UPDATE_MIGRATE_SCRIPT", "scripts/migrate.sh"),
			CommandTimeout:  getEnvDuration("UPDATE_COMMAND_TIMEOUT", 5*time.Minute),
			DownloadTimeout: getEnvDuration("UPDATE_DOWNLOAD_TIMEOUT", 10*time.Minute),
			RestartDelay:    getEnvDuration("UPDATE_RESTART_DELAY", DefaultRestartDelay),
		},
		Backup: BackupConfig{
			Dir:     getEnv("BACKUP_DIR", "database_backups"),
			Command: getEnv("BACKUP_COMMAND", ""),
			Candidates: getEnvSlice("BACKUP_DB_CANDIDATES", []string{
				"data/otrs.db",
				"instance/otrs.db",
			}),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("PPROF_ENABLED", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid and clamps tunables to safe floors
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	switch c.Update.Source {
	case "github", "yunxiao":
	default:
		return fmt.Errorf("unknown update source: %s", c.Update.Source)
	}

	if c.Update.PollInterval < MinPollInterval {
		c.Update.PollInterval = MinPollInterval
	}

	if c.Update.RestartDelay < time.Second {
		c.Update.RestartDelay = DefaultRestartDelay
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
