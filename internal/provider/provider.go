// Package provider defines the capability contract for embedding and text
// generation backends, and the concrete clients for the supported services.
package provider

import (
	"context"
	"time"
)

// ID identifies a concrete provider implementation. Selection is always by
// explicit ID at construction time, never by reflection.
type ID string

const (
	// Local is an OpenAI-compatible local inference server (llama.cpp,
	// LM Studio, vLLM and friends).
	Local ID = "local"
	// OpenAI is the hosted OpenAI API.
	OpenAI ID = "openai"
	// Anthropic is the hosted Anthropic API. It has no embedding endpoint.
	Anthropic ID = "anthropic"
	// Gemini is the hosted Google Generative Language API.
	Gemini ID = "gemini"
)

// HealthState describes the outcome of a health probe.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// Health is the result of a health check probe.
type Health struct {
	Status  HealthState   `json:"status"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
	// Models lists model identifiers reported by the backend, when the
	// backend exposes a listing endpoint.
	Models []string `json:"models,omitempty"`
}

// Metadata is the static capability description of a provider. It is queried
// before any embedding-consistency decision is made.
type Metadata struct {
	ProviderID         ID     `json:"provider_id"`
	SupportsEmbeddings bool   `json:"supports_embeddings"`
	SupportsGeneration bool   `json:"supports_generation"`
	SupportsStreaming  bool   `json:"supports_streaming"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	EmbeddingModel     string `json:"embedding_model"`
	GenerationModel    string `json:"generation_model"`
	MaxTokens          int    `json:"max_tokens"`
}

// Usage reports token accounting for a generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateRequest is a single-shot or streaming completion request.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// GenerateResult is the outcome of a completed generation call.
type GenerateResult struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// StreamChunk is one incremental piece of a streamed generation. The terminal
// chunk carries a FinishReason; a failed stream delivers Err as its final
// chunk. Chunks arrive in strict network order.
type StreamChunk struct {
	Delta        string
	FinishReason string
	Err          error
}

// Provider is the closed interface over one embedding/generation backend.
//
// Embed and Generate are synchronous-blocking; StreamGenerate produces chunks
// on the returned channel until the stream ends or ctx is canceled. The only
// cancellation signal for a stream is canceling ctx: the server side may keep
// consuming quota after abandonment.
type Provider interface {
	// Embed batch-embeds texts, one vector per input in input order. The
	// result is all-or-nothing: no partial matrices. Providers without
	// embedding support fail with ErrUnsupportedOperation.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Generate performs a single-shot completion.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// StreamGenerate starts a streaming completion. The channel is closed
	// after the terminal chunk.
	StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error)

	// HealthCheck probes the backend with a short fixed timeout. It never
	// participates in the circuit breaker or retry logic.
	HealthCheck(ctx context.Context) (*Health, error)

	// Metadata returns the static capability description.
	Metadata() Metadata

	// Close releases resources held by the provider.
	Close() error
}

// healthCheckTimeout is the fixed probe timeout, distinct from the normal
// per-call operation timeout.
const healthCheckTimeout = 5 * time.Second
