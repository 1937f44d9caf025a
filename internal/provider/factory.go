package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// ConfigFromEnv resolves provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its own native
// credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER              = ollama | openai | azure | bedrock | gemini (default: openai)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Bedrock: AWS credential chain, AWS_REGION (default: us-east-1), BEDROCK_MODEL_ID
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-flash)
//
//	Shared:  MODEL_NAME and MODEL_API_KEY apply to whichever backend is
//	         selected when its native env var is unset; the native var wins.
//	         MODEL_MAX_TOKENS (default: 1024), MODEL_TEMPERATURE (default: 0.0)
func ConfigFromEnv() *Config {
	// Generic fallbacks shared across backends. The backend-native env var
	// always takes precedence.
	model := os.Getenv("MODEL_NAME")
	apiKey := os.Getenv("MODEL_API_KEY")

	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOpenAI))),
		Ollama: OllamaConfig{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", orDefault(model, "llama3")),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnvOrDefault("OPENAI_API_KEY", apiKey),
			Model:  getEnvOrDefault("OPENAI_MODEL", orDefault(model, "gpt-4o-mini")),
		},
		Azure: AzureConfig{
			APIKey:     getEnvOrDefault("AZURE_OPENAI_API_KEY", apiKey),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: getEnvOrDefault("AZURE_OPENAI_DEPLOYMENT", model),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Bedrock: BedrockConfig{
			Region:  getEnvOrDefault("AWS_REGION", "us-east-1"),
			ModelID: getEnvOrDefault("BEDROCK_MODEL_ID", model),
		},
		Gemini: GeminiConfig{
			APIKey: getEnvOrDefault("GOOGLE_API_KEY", apiKey),
			Model:  getEnvOrDefault("GEMINI_MODEL", orDefault(model, "gemini-1.5-flash")),
		},
		MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 1024),
		Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.0),
	}
}

// New constructs a ChatModel from an explicit Config, delegating to the
// appropriate backend factory function. It validates the config first so
// callers get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendBedrock:
		return newBedrock(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, bedrock, gemini)", cfg.Backend)
	}
}

// orDefault returns v, or fallback when v is empty.
func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
