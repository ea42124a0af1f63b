package quizsolver

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries every environment-driven setting. A missing .env file is
// fine; real deployments set the variables directly.
type Config struct {
	GeminiAPIKeys []string
	GeminiModel   string
	GitHubToken   string
	GitHubModel   string
	GroqAPIKey    string
	GroqModel     string
	HFAccessToken string
	HFModel       string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	redisAddr     string // REDIS_ADDR override

	DBPath      string
	UploadDir   string
	StorageDir  string
	LogMode     string
	Concurrency int
}

// LoadConfig reads .env if present and resolves the configuration.
func LoadConfig() *Config {
	godotenv.Load()

	geminiKeys := splitKeys(envStr("GEMINI_API_KEYS", ""))
	if len(geminiKeys) == 0 {
		geminiKeys = splitKeys(envStr("GEMINI_API_KEY", ""))
	}

	return &Config{
		GeminiAPIKeys: geminiKeys,
		GeminiModel:   envStr("GEMINI_MODEL", ""),
		GitHubToken:   envStr("GITHUB_TOKEN", ""),
		GitHubModel:   envStr("GITHUB_MODEL", ""),
		GroqAPIKey:    envStr("GROQ_API_KEY", ""),
		GroqModel:     envStr("GROQ_MODEL", ""),
		HFAccessToken: envStr("HF_ACCESS_TOKEN", ""),
		HFModel:       envStr("HF_MODEL", ""),

		RedisHost:     envStr("REDIS_HOST", "localhost"),
		RedisPort:     envStr("REDIS_PORT", "6379"),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		redisAddr:     envStr("REDIS_ADDR", ""),

		DBPath:      envStr("QUIZSOLVER_DB", "quizsolver.db"),
		UploadDir:   envStr("QUIZSOLVER_UPLOAD_DIR", "uploads"),
		StorageDir:  envStr("QUIZSOLVER_STORAGE_DIR", "archive"),
		LogMode:     envStr("QUIZSOLVER_LOG_MODE", "development"),
		Concurrency: envInt("BULLMQ_QUIZ_CONCURRENCY", 1),
	}
}

// RedisAddr joins host and port for the redis client. REDIS_ADDR, when set,
// wins over the host/port pair.
func (c *Config) RedisAddr() string {
	if c.redisAddr != "" {
		return c.redisAddr
	}
	return c.RedisHost + ":" + c.RedisPort
}

// Providers builds the configured adapter cascade. Adapters without
// credentials are still constructed; they report unavailable and the
// orchestrator skips them.
func (c *Config) Providers(log *Logger) []Provider {
	return []Provider{
		NewGeminiProvider(c.GeminiAPIKeys, c.GeminiModel, log),
		NewGitHubModelsProvider(splitKeys(c.GitHubToken), c.GitHubModel, log),
		NewGroqProvider(splitKeys(c.GroqAPIKey), c.GroqModel, log),
		NewHuggingFaceProvider(splitKeys(c.HFAccessToken), c.HFModel, log),
	}
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
