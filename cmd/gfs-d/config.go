package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr            = "127.0.0.1:8090"
	defaultBackend         = "sqlite"
	defaultRedisAddr       = "127.0.0.1:6379"
	defaultShutdownTimeout = 10 * time.Second
)

var backends = []string{"memory", "sqlite", "local", "badger", "redis"}

type Config struct {
	Addr            string
	Backend         string
	DBPath          string
	DataDir         string
	RedisAddr       string
	RedisNamespace  string
	LogLevel        string
	LogFormat       string
	ReferenceChecks bool
	ShutdownTimeout time.Duration
}

// LoadConfig reads GFS_* environment variables, then lets flags in args
// override them.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	refChecks := false
	if v := os.Getenv("GFS_REFERENCE_CHECKS"); v != "" {
		refChecks, err = strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GFS_REFERENCE_CHECKS: %w", err)
		}
	}
	shutdownTimeout := defaultShutdownTimeout
	if v := os.Getenv("GFS_SHUTDOWN_TIMEOUT"); v != "" {
		shutdownTimeout, err = time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GFS_SHUTDOWN_TIMEOUT: %w", err)
		}
		if shutdownTimeout <= 0 {
			return Config{}, errors.New("GFS_SHUTDOWN_TIMEOUT must be positive")
		}
	}

	flagSet := flag.NewFlagSet("gfs-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagAddr := flagSet.String("addr", addrFromEnv(defaultAddr), "HTTP listen address")
	flagBackend := flagSet.String("backend", envOrDefault("GFS_BACKEND", defaultBackend), "registry backend: "+strings.Join(backends, "|"))
	flagDB := flagSet.String("db", envOrDefault("GFS_DB_PATH", filepath.Join(cwd, "gfs.db")), "path to SQLite database")
	flagDataDir := flagSet.String("data-dir", envOrDefault("GFS_DATA_DIR", filepath.Join(cwd, "gfs-data")), "directory for the local and badger backends")
	flagRedis := flagSet.String("redis-addr", envOrDefault("GFS_REDIS_ADDR", defaultRedisAddr), "Redis address for the redis backend")
	flagNamespace := flagSet.String("redis-namespace", os.Getenv("GFS_REDIS_NAMESPACE"), "Redis key namespace")
	flagLevel := flagSet.String("log-level", envOrDefault("GFS_LOG_LEVEL", "info"), "log level: debug|info|warn|error")
	flagFormat := flagSet.String("log-format", envOrDefault("GFS_LOG_FORMAT", "json"), "log format: json|console")
	flagRefs := flagSet.Bool("reference-checks", refChecks, "reject resources that point at unregistered ones")
	flagShutdown := flagSet.Duration("shutdown-timeout", shutdownTimeout, "grace period for in-flight requests")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	config := Config{
		Addr:            strings.TrimSpace(*flagAddr),
		Backend:         strings.ToLower(strings.TrimSpace(*flagBackend)),
		DBPath:          resolvePath(*flagDB, cwd),
		DataDir:         resolvePath(*flagDataDir, cwd),
		RedisAddr:       strings.TrimSpace(*flagRedis),
		RedisNamespace:  strings.TrimSpace(*flagNamespace),
		LogLevel:        *flagLevel,
		LogFormat:       *flagFormat,
		ReferenceChecks: *flagRefs,
		ShutdownTimeout: *flagShutdown,
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.ShutdownTimeout <= 0 {
		return Config{}, errors.New("shutdown timeout must be positive")
	}
	switch config.Backend {
	case "memory":
	case "sqlite":
		if config.DBPath == "" {
			return Config{}, errors.New("backend=sqlite requires db")
		}
	case "local", "badger":
		if config.DataDir == "" {
			return Config{}, fmt.Errorf("backend=%s requires data-dir", config.Backend)
		}
	case "redis":
		if config.RedisAddr == "" {
			return Config{}, errors.New("backend=redis requires redis-addr")
		}
	default:
		return Config{}, fmt.Errorf("unsupported backend: %s", config.Backend)
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("GFS_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("GFS_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
