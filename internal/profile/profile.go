package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/covercast/plugin/ai/timeout"
)

// Profile is the configuration to start the forecasting server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where covercast stores patterns, profiles and prediction records
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// AI Configuration
	AIEmbeddingProvider string // COVERCAST_AI_EMBEDDING_PROVIDER (default: siliconflow)
	AIEmbeddingModel    string // COVERCAST_AI_EMBEDDING_MODEL (default: BAAI/bge-m3)
	AIEmbeddingDims     int    // COVERCAST_AI_EMBEDDING_DIMENSIONS (default: 1024)
	AILLMProvider       string // COVERCAST_AI_LLM_PROVIDER (default: deepseek)
	AILLMModel          string // COVERCAST_AI_LLM_MODEL (default: deepseek-chat)
	AISiliconFlowAPIKey string // COVERCAST_AI_SILICONFLOW_API_KEY
	AISiliconFlowURL    string // COVERCAST_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AIDeepSeekAPIKey    string // COVERCAST_AI_DEEPSEEK_API_KEY
	AIDeepSeekURL       string // COVERCAST_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AIOpenAIAPIKey      string // COVERCAST_AI_OPENAI_API_KEY
	AIOpenAIURL         string // COVERCAST_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIOllamaURL         string // COVERCAST_AI_OLLAMA_BASE_URL (default: http://localhost:11434/v1)
	AIRequestsPerSecond float64
	AIBurst             int

	// Inbound limit per restaurant
	APIRequestsPerSecond float64
	APIBurst             int

	// RedisAddr enables the shared prediction cache when set.
	RedisAddr     string // COVERCAST_REDIS_ADDR
	RedisPassword string // COVERCAST_REDIS_PASSWORD

	// Forecast configuration
	TopK               int
	SimilarityFloor    float64
	FallbackCovers     float64
	FallbackConfidence float64
	CacheTTL           time.Duration
	BatchConcurrency   int
	BatchMaxDays       int

	// Timeouts
	RequestTimeout    time.Duration
	EmbeddingTimeout  time.Duration
	SearchTimeout     time.Duration
	GenerationTimeout time.Duration
}

// Default returns a profile with every forecast default filled in.
func Default() *Profile {
	return &Profile{
		Mode:                 "dev",
		Addr:                 "",
		Port:                 8081,
		Driver:               "sqlite",
		Version:              "0.1.0",
		AIEmbeddingProvider:  "siliconflow",
		AIEmbeddingModel:     "BAAI/bge-m3",
		AIEmbeddingDims:      1024,
		AILLMProvider:        "deepseek",
		AILLMModel:           "deepseek-chat",
		AIRequestsPerSecond:  10,
		AIBurst:              20,
		APIRequestsPerSecond: 10,
		APIBurst:             20,
		TopK:                 5,
		SimilarityFloor:      0.5,
		FallbackCovers:       120,
		FallbackConfidence:   0.5,
		CacheTTL:             5 * time.Minute,
		BatchConcurrency:     4,
		BatchMaxDays:         62,
		RequestTimeout:       timeout.RequestTimeout,
		EmbeddingTimeout:     timeout.EmbeddingTimeout,
		SearchTimeout:        timeout.SearchTimeout,
		GenerationTimeout:    timeout.GenerationTimeout,
	}
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if at least one embedding/LLM credential or local endpoint is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AISiliconFlowAPIKey != "" || p.AIOpenAIAPIKey != "" || p.AIDeepSeekAPIKey != "" || p.AIOllamaURL != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads collaborator credentials from environment variables.
// Values already set on the profile are kept when the variable is empty.
func (p *Profile) FromEnv() {
	p.AIEmbeddingProvider = getEnvOrDefault("COVERCAST_AI_EMBEDDING_PROVIDER", p.AIEmbeddingProvider)
	p.AIEmbeddingModel = getEnvOrDefault("COVERCAST_AI_EMBEDDING_MODEL", p.AIEmbeddingModel)
	if dims, err := strconv.Atoi(os.Getenv("COVERCAST_AI_EMBEDDING_DIMENSIONS")); err == nil && dims > 0 {
		p.AIEmbeddingDims = dims
	}
	p.AILLMProvider = getEnvOrDefault("COVERCAST_AI_LLM_PROVIDER", p.AILLMProvider)
	p.AILLMModel = getEnvOrDefault("COVERCAST_AI_LLM_MODEL", p.AILLMModel)
	p.AISiliconFlowAPIKey = getEnvOrDefault("COVERCAST_AI_SILICONFLOW_API_KEY", p.AISiliconFlowAPIKey)
	p.AISiliconFlowURL = getEnvOrDefault("COVERCAST_AI_SILICONFLOW_BASE_URL", defaultString(p.AISiliconFlowURL, "https://api.siliconflow.cn/v1"))
	p.AIDeepSeekAPIKey = getEnvOrDefault("COVERCAST_AI_DEEPSEEK_API_KEY", p.AIDeepSeekAPIKey)
	p.AIDeepSeekURL = getEnvOrDefault("COVERCAST_AI_DEEPSEEK_BASE_URL", defaultString(p.AIDeepSeekURL, "https://api.deepseek.com"))
	p.AIOpenAIAPIKey = getEnvOrDefault("COVERCAST_AI_OPENAI_API_KEY", p.AIOpenAIAPIKey)
	p.AIOpenAIURL = getEnvOrDefault("COVERCAST_AI_OPENAI_BASE_URL", defaultString(p.AIOpenAIURL, "https://api.openai.com/v1"))
	p.AIOllamaURL = getEnvOrDefault("COVERCAST_AI_OLLAMA_BASE_URL", p.AIOllamaURL)
	p.RedisAddr = getEnvOrDefault("COVERCAST_REDIS_ADDR", p.RedisAddr)
	p.RedisPassword = getEnvOrDefault("COVERCAST_REDIS_PASSWORD", p.RedisPassword)
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and rejects inconsistent settings.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("covercast_%s.db", p.Mode))
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.TopK <= 0 {
		return errors.Errorf("top-k must be positive, got %d", p.TopK)
	}
	if p.SimilarityFloor < 0 || p.SimilarityFloor > 1 {
		return errors.Errorf("similarity floor must be within [0, 1], got %v", p.SimilarityFloor)
	}
	if p.FallbackConfidence < 0 || p.FallbackConfidence > 1 {
		return errors.Errorf("fallback confidence must be within [0, 1], got %v", p.FallbackConfidence)
	}
	if p.FallbackCovers < 0 {
		return errors.Errorf("fallback covers must not be negative, got %v", p.FallbackCovers)
	}
	if p.BatchConcurrency <= 0 {
		return errors.Errorf("batch concurrency must be positive, got %d", p.BatchConcurrency)
	}

	// Collaborator calls must give up before the caller does.
	for name, d := range map[string]time.Duration{
		"embedding":  p.EmbeddingTimeout,
		"search":     p.SearchTimeout,
		"generation": p.GenerationTimeout,
	} {
		if d <= 0 || d >= p.RequestTimeout {
			return errors.Errorf("%s timeout %s must be positive and shorter than request timeout %s", name, d, p.RequestTimeout)
		}
	}

	return nil
}
