// Package provider defines the ModelProvider configuration and factory for
// selecting and constructing LLM backend implementations at runtime.
// Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock, Google Gemini.
package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ChatModel is the model abstraction the engine generates answers through.
type ChatModel = model.ChatModel //nolint:staticcheck // SA1019: deprecated upstream; migration tracked separately

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig
	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock BedrockConfig
	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig

	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// OllamaConfig holds Ollama backend settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model is the Ollama model name.
	Model string
}

// OpenAIConfig holds OpenAI backend settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the OpenAI model name.
	Model string
}

// AzureConfig holds Azure OpenAI backend settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key.
	APIKey string
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string
	// Deployment is the Azure OpenAI deployment name.
	Deployment string
	// APIVersion is the Azure OpenAI REST API version.
	APIVersion string
}

// BedrockConfig holds AWS Bedrock backend settings. Credentials are resolved
// via the standard SDK chain, not this struct.
type BedrockConfig struct {
	// Region is the AWS region for Bedrock.
	Region string
	// ModelID is the Bedrock model identifier.
	ModelID string
}

// GeminiConfig holds Google Gemini backend settings.
type GeminiConfig struct {
	// APIKey is the Google API key.
	APIKey string
	// Model is the Gemini model name.
	Model string
}

// Validate checks that the configuration carries everything the selected
// backend requires, so callers fail at startup rather than on first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
	case BackendAzure:
		if c.Azure.APIKey == "" || c.Azure.Endpoint == "" || c.Azure.Deployment == "" {
			return fmt.Errorf("provider: azure backend requires AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, and AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, bedrock, gemini)", c.Backend)
	}
	return nil
}

// HealthChecker reports whether a backend is reachable without spending
// tokens. Backends that expose a cheap status endpoint implement it.
type HealthChecker interface {
	// HealthCheck probes the backend. Returns nil when reachable.
	HealthCheck(ctx context.Context) error
}
