package shared

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	// sweeper
	HoldTTL      time.Duration
	SweepBatch   int
	SweepWorkers int
	SweepRate    int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	// The sweeper's limiter and semaphore both stall on a non-positive size.
	atLeast1 := func(k string, def int) int {
		if n := atoi(k, def); n >= 1 {
			return n
		}
		return 1
	}
	return Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/hostel?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,

		HoldTTL:      time.Duration(atoi("HOLD_TTL_MINUTES", 30)) * time.Minute,
		SweepBatch:   atLeast1("SWEEP_BATCH", 500),
		SweepWorkers: atLeast1("SWEEP_WORKERS", 4),
		SweepRate:    atLeast1("SWEEP_RATE", 50),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
