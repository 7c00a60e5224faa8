package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// KnownKeys lists the environment variables docrag recognizes. Values from
// a .env file never override variables already present in the environment.
var KnownKeys = []string{
	"DOCRAG_ADDR",
	"DOCRAG_DOCS_DIR",
	"DOCRAG_STORAGE_DIR",
	"DOCRAG_SQLITE_PATH",
	"DOCRAG_OPENAI_BASE_URL",
	"OPENAI_API_KEY",
	"DOCRAG_CHAT_MODEL",
	"DOCRAG_EMBEDDING_MODEL",
	"DOCRAG_CHUNK_SIZE",
	"DOCRAG_CHUNK_OVERLAP",
	"DOCRAG_TOP_K",
	"DOCRAG_SIMILARITY_THRESHOLD",
	"DOCRAG_LOG_LEVEL",
	"DOCRAG_RATE_LIMIT_RPS",
	"DOCRAG_API_TOKEN",
	"DOCRAG_EMBED_BATCH",
	"DOCRAG_EMBED_CONCURRENCY",
	"DOCRAG_PROVIDER_TIMEOUT",
}

// Config holds everything resolved once at startup.
type Config struct {
	Addr             string
	DocsDir          string
	StorageDir       string
	SQLitePath       string
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	Threshold        float64
	EmbedBatch       int
	EmbedConcurrency int
	ProviderTimeout  time.Duration
}

// Load reads .env (if present) into the environment and resolves the
// configuration with defaults matching the documented behavior.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Addr:             getString("DOCRAG_ADDR", ":8091"),
		DocsDir:          getString("DOCRAG_DOCS_DIR", "data/docs"),
		StorageDir:       getString("DOCRAG_STORAGE_DIR", "storage"),
		SQLitePath:       os.Getenv("DOCRAG_SQLITE_PATH"),
		ChunkSize:        getInt("DOCRAG_CHUNK_SIZE", 400),
		ChunkOverlap:     getIntAllowZero("DOCRAG_CHUNK_OVERLAP", 50),
		TopK:             getInt("DOCRAG_TOP_K", 8),
		Threshold:        getFloat("DOCRAG_SIMILARITY_THRESHOLD", 0.35),
		EmbedBatch:       getInt("DOCRAG_EMBED_BATCH", 64),
		EmbedConcurrency: getInt("DOCRAG_EMBED_CONCURRENCY", 4),
		ProviderTimeout:  getDuration("DOCRAG_PROVIDER_TIMEOUT", 60*time.Second),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getIntAllowZero(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
