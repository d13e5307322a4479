package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL string
	ServicePort string

	LogLevel  string
	LogFormat string

	// Orchestrator backend: "kubernetes" or "docker".
	Orchestrator    string
	KubeconfigPath  string
	Namespace       string
	GameServerImage string
	GameServerHost  string
	Environment     string

	DefaultMaxPlayers   int
	OrchestratorTimeout time.Duration

	// Reconciler intervals.
	StoppingGracePeriod time.Duration
	ReconcileInterval   time.Duration

	KafkaBrokerURL string
	KafkaTopic     string
	RabbitMQURL    string
	RedisURL       string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	return &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ServicePort: getEnv("SERVICE_PORT", "8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		Orchestrator:    getEnv("ORCHESTRATOR", "kubernetes"),
		KubeconfigPath:  os.Getenv("KUBECONFIG"),
		Namespace:       getEnv("GAME_SERVER_NAMESPACE", "veverse-gs"),
		GameServerImage: os.Getenv("GAME_SERVER_IMAGE"),
		GameServerHost:  os.Getenv("GAME_SERVER_HOST"),
		Environment:     getEnv("ENVIRONMENT", "dev"),

		DefaultMaxPlayers:   getEnvInt("DEFAULT_MAX_PLAYERS", 100),
		OrchestratorTimeout: getEnvDuration("ORCHESTRATOR_TIMEOUT", 10*time.Second),

		StoppingGracePeriod: getEnvDuration("STOPPING_GRACE_PERIOD", 5*time.Minute),
		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", time.Minute),

		KafkaBrokerURL: os.Getenv("KAFKA_BROKER_URL"),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "gameserver.events"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
	}
}

// ServerImage returns the orchestrator image with the environment suffix the
// build pipeline publishes ("-test", "-prod"; dev images carry no suffix).
func (c *Config) ServerImage() string {
	switch c.Environment {
	case "test", "prod":
		return c.GameServerImage + "-" + c.Environment
	default:
		return c.GameServerImage
	}
}

// ServerHost returns the public hostname clients connect to. Non-production
// environments are served from a prefixed subdomain.
func (c *Config) ServerHost() string {
	if c.Environment == "prod" {
		return c.GameServerHost
	}
	return c.Environment + "." + c.GameServerHost
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
