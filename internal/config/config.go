// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases, always absolute
	LogLevel string
	Port     int
	DevMode  bool

	TradingDaysPerYear int
	Solver             SolverConfig

	PriceHistoryStart time.Time
	BenchmarkTicker   string

	SnapshotSchedule string
	SnapshotKeep     int

	BackupSchedule      string
	BackupRetentionDays int
	Backup              reliability.S3Config
}

// SolverConfig bounds each optimisation run.
type SolverConfig struct {
	MaxIterations     int
	GradientThreshold float64
	FunctionTolerance float64
	Runtime           time.Duration // 0 = unbounded
}

// OptimizerSettings converts the solver config for the optimizer.
func (c *Config) OptimizerSettings() optimization.Settings {
	return optimization.Settings{
		MaxIterations:      c.Solver.MaxIterations,
		GradientThreshold:  c.Solver.GradientThreshold,
		FunctionTolerance:  c.Solver.FunctionTolerance,
		Runtime:            c.Solver.Runtime,
		TradingDaysPerYear: c.TradingDaysPerYear,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("ALLOCATOR_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	start, err := utils.ParseDate(getEnv("PRICE_HISTORY_START", "2019-01-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_HISTORY_START: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PORT", 8001),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		TradingDaysPerYear: getEnvAsInt("TRADING_DAYS_PER_YEAR", 252),
		Solver: SolverConfig{
			MaxIterations:     getEnvAsInt("SOLVER_MAX_ITERATIONS", 1000),
			GradientThreshold: getEnvAsFloat("SOLVER_GRADIENT_THRESHOLD", 1e-9),
			FunctionTolerance: getEnvAsFloat("SOLVER_FUNCTION_TOLERANCE", 1e-12),
			Runtime:           getEnvAsDuration("SOLVER_RUNTIME", 0),
		},
		PriceHistoryStart:   start,
		BenchmarkTicker:     strings.ToUpper(getEnv("BENCHMARK_TICKER", "^GSPC")),
		SnapshotSchedule:    getEnv("SNAPSHOT_SCHEDULE", "0 30 22 * * MON-FRI"),
		SnapshotKeep:        getEnvAsInt("SNAPSHOT_KEEP", 5),
		BackupSchedule:      getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		Backup: reliability.S3Config{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.TradingDaysPerYear <= 0 {
		return fmt.Errorf("TRADING_DAYS_PER_YEAR must be positive, got %d", c.TradingDaysPerYear)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must be positive, got %d", c.Solver.MaxIterations)
	}
	if c.Solver.GradientThreshold < 0 || c.Solver.FunctionTolerance < 0 || c.Solver.Runtime < 0 {
		return fmt.Errorf("solver tolerances and runtime must not be negative")
	}
	if c.SnapshotKeep < 1 {
		return fmt.Errorf("SNAPSHOT_KEEP must be at least 1, got %d", c.SnapshotKeep)
	}
	if _, err := scheduleParser.Parse(c.SnapshotSchedule); err != nil {
		return fmt.Errorf("invalid SNAPSHOT_SCHEDULE: %w", err)
	}
	if _, err := scheduleParser.Parse(c.BackupSchedule); err != nil {
		return fmt.Errorf("invalid BACKUP_SCHEDULE: %w", err)
	}
	if c.Backup.AccessKeyID != "" && c.Backup.SecretAccessKey == "" {
		return fmt.Errorf("BACKUP_S3_SECRET_ACCESS_KEY is required with BACKUP_S3_ACCESS_KEY_ID")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
