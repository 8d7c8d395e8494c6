package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DBDSN        string
	LogFile      string
	APIBaseURL   string
	HTTPTimeout  time.Duration
	CartBackend  string // sqlite | redis | memory
	RedisURL     string
	RedisAddr    string
	CartSlot     string
	CartMaxAge   time.Duration // 0 keeps carts until cleared
	FallbackDir  string
	TemplatesDir string
	StaticDir    string
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

func Load() Config {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] could not read .env: %v", err)
	}

	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		DBDSN:        getEnv("DB_DSN", "sleepoutside.db"),
		LogFile:      getEnv("LOG_FILE", "./sleepoutside.log"),
		APIBaseURL:   getEnv("API_BASE_URL", "https://wdd330-backend.onrender.com/"),
		HTTPTimeout:  getDuration("HTTP_TIMEOUT", 8*time.Second),
		CartBackend:  strings.ToLower(getEnv("CART_BACKEND", BackendSQLite)),
		RedisURL:     os.Getenv("REDIS_URL"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		CartSlot:     getEnv("CART_SLOT", "so-cart"),
		CartMaxAge:   getDuration("CART_MAX_AGE", 0),
		FallbackDir:  os.Getenv("FALLBACK_DIR"),
		TemplatesDir: getEnv("TEMPLATES_DIR", "./web/templates"),
		StaticDir:    getEnv("STATIC_DIR", "./web/static"),
	}
	switch cfg.CartBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		log.Printf("[config] unknown CART_BACKEND=%q, using %s", cfg.CartBackend, BackendSQLite)
		cfg.CartBackend = BackendSQLite
	}
	if !strings.HasSuffix(cfg.APIBaseURL, "/") {
		cfg.APIBaseURL += "/"
	}

	log.Printf("[config] PORT=%s DB_DSN=%s CART_BACKEND=%s API_BASE_URL=%s HTTP_TIMEOUT=%s LOG_FILE=%s",
		cfg.Port, cfg.DBDSN, cfg.CartBackend, cfg.APIBaseURL, cfg.HTTPTimeout, cfg.LogFile)
	return cfg
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 || (d == 0 && def != 0) {
		log.Printf("[config] invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
