package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string

	// Ingestion pipeline
	IngestWorkers    int
	MaxChunkSize     int
	MinParagraph     int
	EmbedBatchSize   int
	MetadataMaxChars int

	// Retrieval
	TopK                 int
	SimilarityThreshold  float64
	RetrievalConcurrency int

	// Report generation
	SectionConcurrency int
	ReportSuccessRatio float64

	// External call policies
	ProviderTimeout   time.Duration
	ParseMaxAttempts  int
	ParsePollInterval time.Duration
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "planora-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),

		IngestWorkers:    getEnvInt("INGEST_WORKERS", 2),
		MaxChunkSize:     getEnvInt("MAX_CHUNK_SIZE", 1500),
		MinParagraph:     getEnvInt("MIN_PARAGRAPH_LEN", 40),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 16),
		MetadataMaxChars: getEnvInt("METADATA_MAX_CHARS", 24000),

		TopK:                 getEnvInt("TOP_K", 5),
		SimilarityThreshold:  getEnvFloat("SIMILARITY_THRESHOLD", 0.3),
		RetrievalConcurrency: getEnvInt("RETRIEVAL_CONCURRENCY", 4),

		SectionConcurrency: getEnvInt("SECTION_CONCURRENCY", 2),
		ReportSuccessRatio: getEnvFloat("REPORT_SUCCESS_RATIO", 0.5),

		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		ParseMaxAttempts:  getEnvInt("PARSE_MAX_ATTEMPTS", 10),
		ParsePollInterval: getEnvDuration("PARSE_POLL_INTERVAL", 3*time.Second),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
