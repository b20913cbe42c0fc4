package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"docrag-be/pkg/database"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Queue     QueueConfig
	Pipeline  PipelineConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
	Storage   StorageConfig
	Keys      APIKeys
	Ai        AIConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	InstanceID         string
	LogFilePath        string
	StatusLogFilePath  string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
	// Driver is "postgres" or "memory".
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

type AuthConfig struct {
	JwtSecret string
}

type QueueConfig struct {
	// Driver is "gochannel" (in-process) or "jetstream" (durable, shared between instances).
	Driver       string
	StreamName   string
	BufferSize   int64
	AckWait      time.Duration
	MirrorEvents bool
}

type PipelineConfig struct {
	ParseWorkers int
	ChunkWorkers int
	EmbedWorkers int
	IndexWorkers int

	ParseTimeout time.Duration
	ChunkTimeout time.Duration
	EmbedTimeout time.Duration
	IndexTimeout time.Duration

	MaxAttempts         int
	BackoffInitial      time.Duration
	BackoffMax          time.Duration
	EmbedBatchSize      int
	LeaseDuration       time.Duration
	RecoveryInterval    time.Duration
	StaleQueuedAfter    time.Duration
	ProvisioningTimeout time.Duration
}

type RetrievalConfig struct {
	MinRelevance        float64
	CandidateMultiplier int
	MaxQueryLength      int
	Timeout             time.Duration
	VectorIndexDriver   string
	EmbeddingCacheTTL   time.Duration
}

type ChatConfig struct {
	HistoryWindow     int
	GenerationTimeout time.Duration
	TurnRetention     time.Duration
	WikipediaBaseURL  string
	ExternalMaxChars  int
}

type StorageConfig struct {
	UploadDir      string
	MaxUploadBytes int64
}

type APIKeys struct {
	GoogleGemini string
	Jina         string
	OpenAI       string
}

type AIConfig struct {
	DefaultEmbedding   string // registry name used when a workspace does not pick one
	OllamaBaseURL      string
	OllamaModel        string
	OllamaDimension    int
	OpenAIBaseURL      string
	OpenAIEmbedModel   string
	OpenAIDimension    int
	HashDimension      int
	ProviderRatePerSec float64
	LLMProvider        string // "ollama" or "openai"
	LLMModel           string // e.g. "llama3", "qwen2.5"
	LLMBaseURL         string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	hostname, _ := os.Hostname()

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			InstanceID:         getEnv("INSTANCE_ID", hostname),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			StatusLogFilePath:  getEnv("STATUS_LOG_FILE_PATH", "status.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection:      getEnv("DB_CONNECTION_STRING", ""),
			Driver:          getEnv("DB_DRIVER", "postgres"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "warn"),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Queue: QueueConfig{
			Driver:       getEnv("QUEUE_DRIVER", "gochannel"),
			StreamName:   getEnv("QUEUE_STREAM_NAME", "PIPELINE"),
			BufferSize:   int64(getEnvAsInt("QUEUE_BUFFER_SIZE", 256)),
			AckWait:      getEnvAsDuration("QUEUE_ACK_WAIT", 30*time.Second),
			MirrorEvents: getEnvAsBool("QUEUE_MIRROR_EVENTS", true),
		},
		Pipeline: PipelineConfig{
			ParseWorkers:        getEnvAsInt("PIPELINE_PARSE_WORKERS", 4),
			ChunkWorkers:        getEnvAsInt("PIPELINE_CHUNK_WORKERS", 4),
			EmbedWorkers:        getEnvAsInt("PIPELINE_EMBED_WORKERS", 2),
			IndexWorkers:        getEnvAsInt("PIPELINE_INDEX_WORKERS", 2),
			ParseTimeout:        getEnvAsDuration("PIPELINE_PARSE_TIMEOUT", 2*time.Minute),
			ChunkTimeout:        getEnvAsDuration("PIPELINE_CHUNK_TIMEOUT", time.Minute),
			EmbedTimeout:        getEnvAsDuration("PIPELINE_EMBED_TIMEOUT", 5*time.Minute),
			IndexTimeout:        getEnvAsDuration("PIPELINE_INDEX_TIMEOUT", 2*time.Minute),
			MaxAttempts:         getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
			BackoffInitial:      getEnvAsDuration("PIPELINE_BACKOFF_INITIAL", 500*time.Millisecond),
			BackoffMax:          getEnvAsDuration("PIPELINE_BACKOFF_MAX", 10*time.Second),
			EmbedBatchSize:      getEnvAsInt("PIPELINE_EMBED_BATCH_SIZE", 16),
			LeaseDuration:       getEnvAsDuration("PIPELINE_LEASE_DURATION", 15*time.Minute),
			RecoveryInterval:    getEnvAsDuration("PIPELINE_RECOVERY_INTERVAL", 30*time.Second),
			StaleQueuedAfter:    getEnvAsDuration("PIPELINE_STALE_QUEUED_AFTER", 2*time.Minute),
			ProvisioningTimeout: getEnvAsDuration("WORKSPACE_PROVISIONING_TIMEOUT", time.Minute),
		},
		Retrieval: RetrievalConfig{
			MinRelevance:        getEnvAsFloat("RETRIEVAL_MIN_RELEVANCE", 0.35),
			CandidateMultiplier: getEnvAsInt("RETRIEVAL_CANDIDATE_MULTIPLIER", 4),
			MaxQueryLength:      getEnvAsInt("RETRIEVAL_MAX_QUERY_LENGTH", 4000),
			Timeout:             getEnvAsDuration("RETRIEVAL_TIMEOUT", 15*time.Second),
			VectorIndexDriver:   getEnv("VECTOR_INDEX_DRIVER", "pgvector"),
			EmbeddingCacheTTL:   getEnvAsDuration("RETRIEVAL_EMBEDDING_CACHE_TTL", time.Hour),
		},
		Chat: ChatConfig{
			HistoryWindow:     getEnvAsInt("CHAT_HISTORY_WINDOW", 10),
			GenerationTimeout: getEnvAsDuration("CHAT_GENERATION_TIMEOUT", 2*time.Minute),
			TurnRetention:     getEnvAsDuration("CHAT_TURN_RETENTION", 10*time.Minute),
			WikipediaBaseURL:  getEnv("WIKIPEDIA_BASE_URL", "https://en.wikipedia.org"),
			ExternalMaxChars:  getEnvAsInt("CHAT_EXTERNAL_MAX_CHARS", 4000),
		},
		Storage: StorageConfig{
			UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
		},
		Ai: AIConfig{
			DefaultEmbedding:   getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:        getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			OllamaDimension:    getEnvAsInt("OLLAMA_EMBEDDING_DIMENSION", 768),
			OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIEmbedModel:   getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAIDimension:    getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			HashDimension:      getEnvAsInt("HASH_EMBEDDING_DIMENSION", 256),
			ProviderRatePerSec: getEnvAsFloat("AI_PROVIDER_RATE_PER_SEC", 10),
			LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:           getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:11434"),
		},
	}
}

func (c *Config) DatabasePool() database.PoolConfig {
	return database.PoolConfig{
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogLevel:        c.Database.LogLevel,
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings ("30s", "5m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
