package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	LogLevel               string
	PaymentTolerance       float64
	PriceAlertThresholdPct float64
	PriceBaselineWindow    int
	OutlierCacheTTLSeconds int
	AuditStream            string
	DocumentLockTTLSeconds int
}

// Load reads the environment, after a .env file when one exists.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		PaymentTolerance:       positiveFloat("PAYMENT_TOLERANCE", 1e-6),
		PriceAlertThresholdPct: positiveFloat("PRICE_ALERT_THRESHOLD_PCT", 15),
		PriceBaselineWindow:    positiveInt("PRICE_BASELINE_WINDOW", 10),
		OutlierCacheTTLSeconds: positiveInt("OUTLIER_CACHE_TTL_SECONDS", 30),
		AuditStream:            getEnv("AUDIT_STREAM", "p2p:audit"),
		DocumentLockTTLSeconds: positiveInt("DOCUMENT_LOCK_TTL_SECONDS", 15),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func positiveFloat(key string, fallback float64) float64 {
	val, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}
