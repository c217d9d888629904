package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  int
	JWTSecret   string
	CORSOrigins []string
	Database    DatabaseConfig
	Judge       JudgeConfig
	Redis       RedisConfig
	MQ          MQConfig
	Storage     StorageConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// JudgeConfig describes the external code-execution service.
type JudgeConfig struct {
	URL             string
	APIKey          string
	Host            string
	PollInterval    time.Duration
	MaxPollAttempts int
	RequestTimeout  time.Duration
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	LeaderboardKey string
}

// MQConfig selects the event bus backend. Backend is one of rabbitmq, pubsub or none.
type MQConfig struct {
	Backend          string
	EvaluatedChannel string
	RabbitMQ         RabbitMQConfig
	PubSub           PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// StorageConfig selects the submission archive backend. Backend is one of minio, gcs or none.
type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type LogConfig struct {
	Level string
	File  string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "dailyjudge"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "dailyjudge_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	judgeConfig := JudgeConfig{
		URL:             getEnv("JUDGE_URL", ""),
		APIKey:          getEnv("JUDGE_API_KEY", ""),
		Host:            getEnv("JUDGE_HOST", ""),
		PollInterval:    getEnvDuration("JUDGE_POLL_INTERVAL", 500*time.Millisecond),
		MaxPollAttempts: getEnvInt("JUDGE_MAX_POLL_ATTEMPTS", 20),
		RequestTimeout:  getEnvDuration("JUDGE_REQUEST_TIMEOUT", 10*time.Second),
	}

	return Config{
		ServerPort:  getEnvInt("SERVER_PORT", 8080),
		JWTSecret:   strings.TrimSpace(getEnv("JWT_SECRET", "")),
		CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		Database:    dbConfig,
		Judge:       judgeConfig,
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvInt("REDIS_DB", 0),
			LeaderboardKey: getEnv("REDIS_LEADERBOARD_KEY", "leaderboard:rank_points"),
		},
		MQ: MQConfig{
			Backend:          strings.ToLower(getEnv("MQ_BACKEND", "none")),
			EvaluatedChannel: getEnv("MQ_EVALUATED_CHANNEL", "submission.evaluated"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "none")),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "dailyjudge"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}
