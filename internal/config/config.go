package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	SecretKey  string

	InternalSecretKey string
	CORSOrigin        string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	OrderTotalCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	ReservationTTL   time.Duration
	ReaperSchedule   string
	OutboxSchedule   string
	CacheSweep       string
	MaxOrderQuantity int
}

const (
	defaultAppPort          = "8080"
	defaultCORSOrigin       = "http://localhost:3000"
	defaultKafkaTopic       = "fulfillment.events"
	defaultCacheTTL         = time.Hour
	defaultReservationTTL   = 15 * time.Minute
	defaultReaperSchedule   = "@every 1m"
	defaultOutboxSchedule   = "@every 10s"
	defaultCacheSweep       = "@every 5m"
	defaultMaxOrderQuantity = 1000
)

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getEnv("APP_PORT", defaultAppPort),
		AppEnv:     os.Getenv("APP_ENV"),
		SecretKey:  os.Getenv("SECRET_KEY"),

		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
		CORSOrigin:        getEnv("CORS_ORIGIN", defaultCORSOrigin),

		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		OrderTotalCacheTTL: getDuration("ORDER_TOTAL_CACHE_TTL", defaultCacheTTL),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", defaultKafkaTopic),

		ReservationTTL:   getDuration("RESERVATION_TTL", defaultReservationTTL),
		ReaperSchedule:   getEnv("REAPER_SCHEDULE", defaultReaperSchedule),
		OutboxSchedule:   getEnv("OUTBOX_SCHEDULE", defaultOutboxSchedule),
		CacheSweep:       getEnv("CACHE_SWEEP_SCHEDULE", defaultCacheSweep),
		MaxOrderQuantity: getInt("MAX_ORDER_QUANTITY", defaultMaxOrderQuantity),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
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
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// getDuration accepts Go durations ("90s") or plain seconds ("3600").
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("invalid %s=%q, using %s", key, v, fallback)
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
