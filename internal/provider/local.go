package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// LocalProvider talks to an OpenAI-compatible local inference server
// (llama.cpp, LM Studio, vLLM). It reuses the OpenAI wire structs since the
// dialect is identical; auth is optional and the endpoint defaults to
// localhost.
type LocalProvider struct {
	*restClient
}

// NewLocalProvider creates a local inference server provider.
func NewLocalProvider(cfg Config, logger *zap.Logger) (*LocalProvider, error) {
	cfg.ApplyDefaults(Local)
	if err := cfg.Validate(Local); err != nil {
		return nil, err
	}

	meta := Metadata{
		ProviderID:         Local,
		SupportsEmbeddings: true,
		SupportsGeneration: true,
		SupportsStreaming:  true,
		EmbeddingDimension: cfg.EmbeddingDimension,
		EmbeddingModel:     cfg.EmbeddingModel,
		GenerationModel:    cfg.GenerationModel,
		MaxTokens:          cfg.MaxTokens,
	}
	return &LocalProvider{restClient: newRESTClient(cfg, meta, logger)}, nil
}

func (p *LocalProvider) headers() map[string]string {
	if !p.cfg.APIKey.IsSet() {
		return nil
	}
	return map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey.Value(),
	}
}

// Embed batch-embeds texts via POST /v1/embeddings.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	req := openAIEmbeddingRequest{
		Model:          p.cfg.EmbeddingModel,
		Input:          texts,
		EncodingFormat: "float",
	}

	var out openAIEmbeddingResponse
	err := p.call(ctx, func(ctx context.Context) error {
		return p.postJSON(ctx, p.cfg.BaseURL+"/v1/embeddings", p.headers(), req, &out)
	})
	if err != nil {
		return nil, err
	}

	return orderedEmbeddings(out.Data, len(texts))
}

func (p *LocalProvider) chatRequest(req GenerateRequest, stream bool) openAIChatRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	return openAIChatRequest{
		Model:       p.cfg.GenerationModel,
		Messages:    []openAIMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

// Generate performs a single-shot completion via POST /v1/chat/completions.
func (p *LocalProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var out openAIChatResponse
	err := p.call(ctx, func(ctx context.Context) error {
		return p.postJSON(ctx, p.cfg.BaseURL+"/v1/chat/completions", p.headers(), p.chatRequest(req, false), &out)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrProtocol)
	}

	return &GenerateResult{
		Text:         out.Choices[0].Message.Content,
		Model:        out.Model,
		FinishReason: out.Choices[0].FinishReason,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

// StreamGenerate starts a streaming completion over SSE.
func (p *LocalProvider) StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	body, err := p.openStream(ctx, p.cfg.BaseURL+"/v1/chat/completions", p.headers(), p.chatRequest(req, true))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer body.Close()

		sc := newSSEScanner(body)
		for {
			payload, ok, err := sc.Next()
			if err != nil {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("%w: %v", ErrTransport, err)})
				return
			}
			if !ok || payload == sseDone {
				return
			}

			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("%w: decoding chunk: %v", ErrProtocol, err)})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			c := StreamChunk{
				Delta:        chunk.Choices[0].Delta.Content,
				FinishReason: chunk.Choices[0].FinishReason,
			}
			if !emit(ctx, out, c) {
				return
			}
			if c.FinishReason != "" {
				return
			}
		}
	}()
	return out, nil
}

// HealthCheck probes GET /v1/models with the short fixed timeout.
func (p *LocalProvider) HealthCheck(ctx context.Context) (*Health, error) {
	return p.probe(ctx, func(ctx context.Context) ([]string, error) {
		var out openAIModelsResponse
		if err := p.getJSON(ctx, p.cfg.BaseURL+"/v1/models", p.headers(), &out); err != nil {
			return nil, err
		}
		models := make([]string, 0, len(out.Data))
		for _, m := range out.Data {
			models = append(models, m.ID)
		}
		return models, nil
	})
}

var _ Provider = (*LocalProvider)(nil)
