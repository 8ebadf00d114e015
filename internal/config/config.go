package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   string
	LogFile    string
	LogFormat  string

	CatalogBaseURL    string
	CatalogAPIKey     string
	CatalogTimeout    time.Duration
	CatalogRatePerSec float64
	CatalogCache      string
	CatalogCacheSize  int
	CatalogCacheTTL   time.Duration
	RedisAddr         string

	ImagePath    string
	ImageWorkers int

	LedgerCapacity int
	TestMode       bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; variables already set win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DBPath:            getEnv("DB_PATH", "/data/cardledger.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           getEnv("LOG_FILE", ""),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		CatalogBaseURL:    getEnv("CATALOG_BASE_URL", "https://api.pokemontcg.io/v2"),
		CatalogAPIKey:     getEnv("CATALOG_API_KEY", ""),
		CatalogTimeout:    getDurationEnv("CATALOG_TIMEOUT", 5*time.Second),
		CatalogRatePerSec: getFloatEnv("CATALOG_RATE_PER_SEC", 5),
		CatalogCache:      getEnv("CATALOG_CACHE", "lru"),
		CatalogCacheSize:  getIntEnv("CATALOG_CACHE_SIZE", 1024),
		CatalogCacheTTL:   getDurationEnv("CATALOG_CACHE_TTL", 24*time.Hour),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		ImagePath:         getEnv("IMAGE_PATH", "/data/images"),
		ImageWorkers:      getIntEnv("IMAGE_WORKERS", 2),
		LedgerCapacity:    getIntEnv("LEDGER_CAPACITY", 500),
		TestMode:          os.Getenv("CARDLEDGER_TEST_MODE") == "1",
	}
}

func (c *Config) Validate() error {
	switch c.CatalogCache {
	case "lru", "redis", "none":
	default:
		return fmt.Errorf("unknown catalog cache %q", c.CatalogCache)
	}
	if c.CatalogCache == "lru" && c.CatalogCacheSize <= 0 {
		return fmt.Errorf("catalog cache size must be positive")
	}
	if c.CatalogRatePerSec <= 0 {
		return fmt.Errorf("catalog rate must be positive")
	}
	if c.ImageWorkers <= 0 {
		return fmt.Errorf("image workers must be positive")
	}
	if c.LedgerCapacity <= 0 {
		return fmt.Errorf("ledger capacity must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
