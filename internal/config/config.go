package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ai       AIConfig
	Pipeline PipelineConfig
	Tasks    TasksConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	SummaryTopic       string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	EmbeddingProvider string // "ollama"
	OllamaBaseURL     string
	OllamaModel       string
	LLMProvider       string // "ollama"
	LLMModel          string // e.g. "llama3", "qwen2.5"
	WorkerBaseURL     string // retrieval worker gateway
}

type PipelineConfig struct {
	HistoryWindow     int
	EpisodicTopK      int
	EpisodicThreshold float64
	DefaultTimeout    time.Duration
	AnswerTimeout     time.Duration
}

type TasksConfig struct {
	Workers   int
	QueueSize int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			SummaryTopic:       getEnv("SUMMARY_UPDATE_TOPIC_NAME", "SUMMARY_UPDATE"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			WorkerBaseURL:     getEnv("RAG_WORKER_BASE_URL", "http://localhost:8800"),
		},
		Pipeline: PipelineConfig{
			HistoryWindow:     getEnvAsInt("PIPELINE_HISTORY_WINDOW", 8),
			EpisodicTopK:      getEnvAsInt("PIPELINE_EPISODIC_TOP_K", 5),
			EpisodicThreshold: getEnvAsFloat("PIPELINE_EPISODIC_THRESHOLD", 0.5),
			DefaultTimeout:    time.Duration(getEnvAsInt("PIPELINE_RUN_TIMEOUT_SECONDS", 8)) * time.Second,
			AnswerTimeout:     time.Duration(getEnvAsInt("PIPELINE_ANSWER_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Tasks: TasksConfig{
			Workers:   getEnvAsInt("TASK_WORKERS", 4),
			QueueSize: getEnvAsInt("TASK_QUEUE_SIZE", 64),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
