package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port            string
	GinMode         string
	LogFormat       string
	DBDriver        string
	DBDSN           string
	JWTSecret       string
	RedisAddr       string
	RedisPassword   string
	NATSURL         string
	IdempotencyPath string
	PolicyFile      string
	CORSOrigin      string
	LockWait        time.Duration
	Policy          Policy
}

// Load membaca .env (jika ada), environment, lalu file policy.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:           getEnv("DB_DSN", "grub.db"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		NATSURL:         os.Getenv("NATS_URL"),
		IdempotencyPath: getEnv("IDEMPOTENCY_DB", "idempotency.db"),
		PolicyFile:      os.Getenv("POLICY_FILE"),
		CORSOrigin:      getEnv("CORS_ORIGIN", "*"),
	}

	wait, err := time.ParseDuration(getEnv("LOCK_WAIT", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_WAIT: %w", err)
	}
	cfg.LockWait = wait

	cfg.Policy = DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = p
	}

	return cfg, nil
}

// InitDB opens the configured database. sqlite is the development default.
func InitDB(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dialector = mysql.Open(cfg.DBDSN)
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	level := logger.Warn
	if cfg.GinMode == "release" {
		level = logger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.DBDriver, err)
	}

	if cfg.DBDriver == "sqlite" {
		// sqlite hanya mengizinkan satu penulis
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
