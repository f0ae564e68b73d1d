package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Storage     StorageConfig

	// SignLockTTL bounds how long one in-flight sign call may hold the
	// per-document lock before the lease expires.
	SignLockTTL time.Duration
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis and
// the signing lock falls back to the in-process locker.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StorageConfig selects the binary storage backend. An empty bucket keeps
// document binaries in the in-memory store (development only).
type StorageConfig struct {
	S3Bucket string
	S3Region string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:        getEnv("VELLUM_ADDR", ":8080"),
		DatabaseURL: os.Getenv("VELLUM_DATABASE_URL"),
		SignLockTTL: getDuration("VELLUM_SIGN_LOCK_TTL", 30*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("VELLUM_REDIS_URL"),
			PoolSize:     getInt("VELLUM_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("VELLUM_REDIS_MIN_IDLE", 2),
			DialTimeout:  getDuration("VELLUM_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("VELLUM_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("VELLUM_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Storage: StorageConfig{
			S3Bucket: os.Getenv("VELLUM_S3_BUCKET"),
			S3Region: getEnv("VELLUM_S3_REGION", "us-east-1"),
		},
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
