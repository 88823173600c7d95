package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider is the hosted Anthropic client. Anthropic exposes no
// embedding endpoint, so Embed fails loudly with ErrUnsupportedOperation
// rather than silently returning zeros.
type AnthropicProvider struct {
	*restClient
}

// NewAnthropicProvider creates an Anthropic provider from a resolved config.
func NewAnthropicProvider(cfg Config, logger *zap.Logger) (*AnthropicProvider, error) {
	cfg.ApplyDefaults(Anthropic)
	if err := cfg.Validate(Anthropic); err != nil {
		return nil, err
	}

	meta := Metadata{
		ProviderID:         Anthropic,
		SupportsEmbeddings: false,
		SupportsGeneration: true,
		SupportsStreaming:  true,
		EmbeddingDimension: 0,
		GenerationModel:    cfg.GenerationModel,
		MaxTokens:          cfg.MaxTokens,
	}
	return &AnthropicProvider{restClient: newRESTClient(cfg, meta, logger)}, nil
}

func (p *AnthropicProvider) authHeaders() map[string]string {
	return map[string]string{
		"X-API-Key":         p.cfg.APIKey.Value(),
		"Anthropic-Version": anthropicVersion,
	}
}

// Embed always fails: the backend has no embedding capability. The error is
// surfaced immediately, outside breaker and retry.
func (p *AnthropicProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: anthropic has no embedding endpoint", ErrUnsupportedOperation)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Stream        bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) messagesRequest(req GenerateRequest, stream bool) anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	return anthropicRequest{
		Model:         p.cfg.GenerationModel,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		StopSequences: req.Stop,
		Messages:      []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Stream:        stream,
	}
}

// Generate performs a single-shot completion via POST /v1/messages.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var out anthropicResponse
	err := p.call(ctx, func(ctx context.Context) error {
		return p.postJSON(ctx, p.cfg.BaseURL+"/v1/messages", p.authHeaders(), p.messagesRequest(req, false), &out)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrProtocol)
	}

	return &GenerateResult{
		Text:         out.Content[0].Text,
		Model:        out.Model,
		FinishReason: out.StopReason,
		Usage: Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

// anthropicStreamEvent covers the event payloads the stream consumer needs:
// content_block_delta carries text, message_delta carries the stop reason and
// message_stop terminates.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

// StreamGenerate starts a streaming completion over SSE.
func (p *AnthropicProvider) StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	body, err := p.openStream(ctx, p.cfg.BaseURL+"/v1/messages", p.authHeaders(), p.messagesRequest(req, true))
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
			if !ok {
				return
			}

			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("%w: decoding event: %v", ErrProtocol, err)})
				return
			}

			switch ev.Type {
			case "content_block_delta":
				if !emit(ctx, out, StreamChunk{Delta: ev.Delta.Text}) {
					return
				}
			case "message_delta":
				if ev.Delta.StopReason != "" {
					emit(ctx, out, StreamChunk{FinishReason: ev.Delta.StopReason})
					return
				}
			case "message_stop":
				return
			}
		}
	}()
	return out, nil
}

type anthropicModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HealthCheck probes GET /v1/models with the short fixed timeout.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) (*Health, error) {
	return p.probe(ctx, func(ctx context.Context) ([]string, error) {
		var out anthropicModelsResponse
		if err := p.getJSON(ctx, p.cfg.BaseURL+"/v1/models?limit=20", p.authHeaders(), &out); err != nil {
			return nil, err
		}
		models := make([]string, 0, len(out.Data))
		for _, m := range out.Data {
			models = append(models, m.ID)
		}
		return models, nil
	})
}

var _ Provider = (*AnthropicProvider)(nil)
