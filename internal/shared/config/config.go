package config

import (
	"os"
	"strconv"
	"time"

	"github.com/radieske/live-odds-engine/pkg/contracts/topics"
)

// Config centraliza variáveis de ambiente e parâmetros de execução do motor
// Inclui provedor, intervalos de polling, portas e sinks opcionais
type Config struct {
	Env         string // "local", "dev", "prod"
	ServiceName string

	// Provedor primário. Sem chave, o motor roda só com o mock.
	OddsAPIKey     string
	OddsAPIBaseURL string

	// Intervalos de polling e timeout por chamada
	OddsInterval      time.Duration
	ScoresInterval    time.Duration
	DiscoveryInterval time.Duration
	ProviderTimeout   time.Duration
	Retention         time.Duration

	// Portas do serviço
	HTTPPort    string // API REST + WebSocket
	MetricsPort string // exclusiva para /metrics e /healthz

	// Sinks opcionais. Vazio = desligado.
	RedisAddr        string
	RedisSnapshotTTL time.Duration
	KafkaBrokers     string // "a:9092,b:9092"
	KafkaTopic       string
	PostgresDSN      string

	TelegramBotToken      string
	TelegramChatID        int64
	TelegramMoveThreshold float64
}

// Load carrega variáveis de ambiente e define defaults
func Load() Config {
	return Config{
		Env:         getEnv("ENV", "local"),
		ServiceName: getEnv("SERVICE_NAME", "odds-engine"),

		OddsAPIKey:     getEnv("ODDS_API_KEY", ""),
		OddsAPIBaseURL: getEnv("ODDS_API_BASE_URL", "https://api.the-odds-api.com"),

		OddsInterval:      getDuration("POLL_ODDS_INTERVAL", 10*time.Second),
		ScoresInterval:    getDuration("POLL_SCORES_INTERVAL", 5*time.Second),
		DiscoveryInterval: getDuration("POLL_DISCOVERY_INTERVAL", 60*time.Second),
		ProviderTimeout:   getDuration("PROVIDER_TIMEOUT", 5*time.Second),
		Retention:         getDuration("EVENT_RETENTION", time.Hour),

		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9095"),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisSnapshotTTL: getDuration("REDIS_SNAPSHOT_TTL", 2*time.Hour),
		KafkaBrokers:     getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:       getEnv("KAFKA_TOPIC_ODDS", topics.OddsChanges),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:        getInt64("TELEGRAM_CHAT_ID", 0),
		TelegramMoveThreshold: getFloat("TELEGRAM_MOVE_THRESHOLD", 0.20),
	}
}

// getEnv retorna o valor da variável de ambiente ou o default
func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
