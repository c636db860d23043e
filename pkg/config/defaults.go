package config

import (
	"time"
)

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	return &Config{
		Server:  defaultServerConfig(),
		LLM:     defaultLLMConfig(),
		History: defaultHistoryConfig(),
		Batch:   defaultBatchConfig(),
		Logging: defaultLoggingConfig(),
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:        "localhost",
		Port:        9999,
		Name:        "prompt-optimizer",
		Description: "Optimizes prompts for a target audience through staged generation, evaluation, and improvement",
		MaxTaskAge:  Duration(time.Hour),
	}
}

func defaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "gemini",
		Temperature: 0.7,
		MaxRetries:  2,
		Cache:       defaultCacheConfig(),
	}
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: false,
		MaxSize: 100 * 1024 * 1024,
		TTL:     Duration(time.Hour),
	}
}

func defaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled: true,
		Path:    "promptforge_history.db",
	}
}

func defaultBatchConfig() BatchConfig {
	return BatchConfig{
		Concurrency: 4,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level: "info",
	}
}
