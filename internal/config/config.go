package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	RegisterID            string
	AuthSecret            string
	AccessTokenTTLMinutes int
	MaxInitialCash        decimal.Decimal
	CacheTTLSeconds       int
	LogLevel              string

	GatewayURL            string
	GatewayTimeoutSeconds int
	GatewayUsername       string
	GatewayPassword       string
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL := getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)
	cacheTTL := getPositiveInt("CACHE_TTL_SECONDS", 300)
	gatewayTimeout := getPositiveInt("GATEWAY_TIMEOUT_SECONDS", 15)

	maxCash, err := decimal.NewFromString(getEnv("MAX_INITIAL_CASH", "5000"))
	if err != nil || maxCash.IsNegative() {
		maxCash = decimal.NewFromInt(5000)
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StoreID:               getEnv("DEFAULT_STORE_ID", "main-store"),
		RegisterID:            getEnv("REGISTER_ID", "register-1"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		MaxInitialCash:        maxCash,
		CacheTTLSeconds:       cacheTTL,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		GatewayURL:            getEnv("GATEWAY_URL", "http://127.0.0.1:8080"),
		GatewayTimeoutSeconds: gatewayTimeout,
		GatewayUsername:       strings.TrimSpace(os.Getenv("GATEWAY_USERNAME")),
		GatewayPassword:       os.Getenv("GATEWAY_PASSWORD"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
