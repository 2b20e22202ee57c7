package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type Config struct {
	Port                      string
	VerifyToken               string
	WhatsAppToken             string
	PhoneNumberID             string
	WhatsAppBusinessAccountID string
	GraphAPIVersion           string

	DBType     string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// KVBackend selects the shared conversation store: sql, dynamodb or memory.
	KVBackend     string
	KVDynamoTable string
	KVTimeout     time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration
	KnownBotJIDs    []string

	ConversationTTL time.Duration
	HandoffTTL      time.Duration

	ProcessTimeout    time.Duration
	LookupTimeout     time.Duration
	SendRatePerSecond float64

	LogMode  string
	LogLevel string
	LogFile  string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		zap.S().Debug("no .env file loaded")
	}

	return &Config{
		Port:                      getEnv("PORT", "8080"),
		VerifyToken:               getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:             getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:             getEnv("PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getEnv("WABA_ID", ""),
		GraphAPIVersion:           getEnv("GRAPH_API_VERSION", "v19.0"),

		DBType:     strings.ToLower(getEnv("DB_TYPE", "sqlite")),
		DBPath:     getEnv("DB_PATH", "./whatsapp.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "whatsapp"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		KVBackend:     strings.ToLower(getEnv("KV_BACKEND", "sql")),
		KVDynamoTable: getEnv("KV_DYNAMO_TABLE", "bot-conversations"),
		KVTimeout:     getEnvDuration("KV_TIMEOUT", 2*time.Second),

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 5),
		RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		KnownBotJIDs:    getEnvList("KNOWN_BOT_JIDS"),

		ConversationTTL: time.Duration(getEnvInt("CONV_TTL_HOURS", 24)) * time.Hour,
		HandoffTTL:      time.Duration(getEnvInt("CONV_HANDOFF_TTL_HOURS", 48)) * time.Hour,

		ProcessTimeout:    getEnvDuration("PROCESS_TIMEOUT", 30*time.Second),
		LookupTimeout:     getEnvDuration("LOOKUP_TIMEOUT", 3*time.Second),
		SendRatePerSecond: getEnvFloat("SEND_RATE_PER_SECOND", 20),

		LogMode:  getEnv("LOG_MODE", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := cast.ToIntE(strings.TrimSpace(value))
	if err != nil {
		zap.S().Warnf("config: invalid integer for %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(value))
	if err != nil {
		zap.S().Warnf("config: invalid number for %s=%q, using %v", key, value, fallback)
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("1500ms", "2s") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value = strings.TrimSpace(value)
	if secs, err := cast.ToIntE(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := cast.ToDurationE(value)
	if err != nil || d <= 0 {
		zap.S().Warnf("config: invalid duration for %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
