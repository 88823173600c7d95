package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// OpenAIProvider is the hosted OpenAI client. It speaks the
// /v1/embeddings and /v1/chat/completions dialect with bearer auth.
type OpenAIProvider struct {
	*restClient
}

// NewOpenAIProvider creates an OpenAI provider from a resolved config.
func NewOpenAIProvider(cfg Config, logger *zap.Logger) (*OpenAIProvider, error) {
	cfg.ApplyDefaults(OpenAI)
	if err := cfg.Validate(OpenAI); err != nil {
		return nil, err
	}

	meta := Metadata{
		ProviderID:         OpenAI,
		SupportsEmbeddings: true,
		SupportsGeneration: true,
		SupportsStreaming:  true,
		EmbeddingDimension: cfg.EmbeddingDimension,
		EmbeddingModel:     cfg.EmbeddingModel,
		GenerationModel:    cfg.GenerationModel,
		MaxTokens:          cfg.MaxTokens,
	}
	return &OpenAIProvider{restClient: newRESTClient(cfg, meta, logger)}, nil
}

func (p *OpenAIProvider) authHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey.Value(),
	}
}

type openAIEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbeddingRow struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openAIEmbeddingResponse struct {
	Data  []openAIEmbeddingRow `json:"data"`
	Model string               `json:"model"`
}

// Embed batch-embeds texts, one row per input in input order.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
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
		return p.postJSON(ctx, p.cfg.BaseURL+"/v1/embeddings", p.authHeaders(), req, &out)
	})
	if err != nil {
		return nil, err
	}

	return orderedEmbeddings(out.Data, len(texts))
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) chatRequest(req GenerateRequest, stream bool) openAIChatRequest {
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

// Generate performs a single-shot completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var out openAIChatResponse
	err := p.call(ctx, func(ctx context.Context) error {
		return p.postJSON(ctx, p.cfg.BaseURL+"/v1/chat/completions", p.authHeaders(), p.chatRequest(req, false), &out)
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

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamGenerate starts a streaming completion over SSE.
func (p *OpenAIProvider) StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	body, err := p.openStream(ctx, p.cfg.BaseURL+"/v1/chat/completions", p.authHeaders(), p.chatRequest(req, true))
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

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HealthCheck probes GET /v1/models with the short fixed timeout.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) (*Health, error) {
	return p.probe(ctx, func(ctx context.Context) ([]string, error) {
		var out openAIModelsResponse
		if err := p.getJSON(ctx, p.cfg.BaseURL+"/v1/models", p.authHeaders(), &out); err != nil {
			return nil, err
		}
		models := make([]string, 0, len(out.Data))
		for _, m := range out.Data {
			models = append(models, m.ID)
		}
		return models, nil
	})
}

// orderedEmbeddings rebuilds the response matrix in input order using the
// per-row index, enforcing all-or-nothing semantics.
func orderedEmbeddings(data []openAIEmbeddingRow, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProtocol, len(data), want)
	}
	vectors := make([][]float32, want)
	for _, d := range data {
		if d.Index < 0 || d.Index >= want {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProtocol, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrProtocol, i)
		}
	}
	return vectors, nil
}

// emit sends a chunk unless the consumer abandoned the stream.
func emit(ctx context.Context, out chan<- StreamChunk, c StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ Provider = (*OpenAIProvider)(nil)
