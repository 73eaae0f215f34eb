package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads .env files into the process environment. Missing files
// are ignored and variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// applyEnv lets the environment override secrets and deployment settings
func (c *Config) applyEnv() {
	switch c.Analysis.Provider {
	case ProviderOpenAI:
		c.Analysis.APIKey = getEnv("GROQ_API_KEY", c.Analysis.APIKey)
	case ProviderAnthropic:
		c.Analysis.APIKey = getEnv("ANTHROPIC_API_KEY", c.Analysis.APIKey)
	}
	c.Analysis.APIKey = getEnv("FEEDSIEVE_API_KEY", c.Analysis.APIKey)
	c.Analysis.Provider = getEnv("FEEDSIEVE_PROVIDER", c.Analysis.Provider)
	c.Analysis.RemoteURL = getEnv("FEEDSIEVE_REMOTE_URL", c.Analysis.RemoteURL)
	c.Analysis.Workers = getEnvInt("FEEDSIEVE_WORKERS", c.Analysis.Workers)
	c.Cache.Backend = getEnv("FEEDSIEVE_CACHE", c.Cache.Backend)
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Log.Level = getEnv("FEEDSIEVE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("FEEDSIEVE_LOG_FORMAT", c.Log.Format)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
