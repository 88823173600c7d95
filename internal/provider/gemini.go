package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// GeminiProvider is the hosted Google Generative Language API client. It
// speaks the v1beta models/{model}:{method} dialect with key auth.
type GeminiProvider struct {
	*restClient
}

// NewGeminiProvider creates a Gemini provider from a resolved config.
func NewGeminiProvider(cfg Config, logger *zap.Logger) (*GeminiProvider, error) {
	cfg.ApplyDefaults(Gemini)
	if err := cfg.Validate(Gemini); err != nil {
		return nil, err
	}

	meta := Metadata{
		ProviderID:         Gemini,
		SupportsEmbeddings: true,
		SupportsGeneration: true,
		SupportsStreaming:  true,
		EmbeddingDimension: cfg.EmbeddingDimension,
		EmbeddingModel:     cfg.EmbeddingModel,
		GenerationModel:    cfg.GenerationModel,
		MaxTokens:          cfg.MaxTokens,
	}
	return &GeminiProvider{restClient: newRESTClient(cfg, meta, logger)}, nil
}

func (p *GeminiProvider) authHeaders() map[string]string {
	return map[string]string{
		"X-Goog-Api-Key": p.cfg.APIKey.Value(),
	}
}

// modelURL builds {base}/v1beta/models/{model}:{method}. Model names in
// settings may already carry the models/ prefix.
func (p *GeminiProvider) modelURL(model, method string) string {
	name := strings.TrimPrefix(model, "models/")
	return fmt.Sprintf("%s/v1beta/models/%s:%s", p.cfg.BaseURL, name, method)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed batch-embeds texts via POST models/{model}:batchEmbedContents.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	model := "models/" + strings.TrimPrefix(p.cfg.EmbeddingModel, "models/")
	req := geminiBatchEmbedRequest{
		Requests: make([]geminiEmbedRequest, len(texts)),
	}
	for i, text := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:   model,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}
	}

	var out geminiBatchEmbedResponse
	err := p.call(ctx, func(ctx context.Context) error {
		return p.postJSON(ctx, p.modelURL(p.cfg.EmbeddingModel, "batchEmbedContents"), p.authHeaders(), req, &out)
	})
	if err != nil {
		return nil, err
	}

	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProtocol, len(out.Embeddings), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for i, e := range out.Embeddings {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for input %d", ErrProtocol, i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     float64  `json:"temperature"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (p *GeminiProvider) generateRequest(req GenerateRequest) geminiGenerateRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	return geminiGenerateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     req.Temperature,
			StopSequences:   req.Stop,
		},
	}
}

func joinParts(c geminiContent) string {
	var sb strings.Builder
	for _, part := range c.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// Generate performs a single-shot completion via models/{model}:generateContent.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var out geminiGenerateResponse
	err := p.call(ctx, func(ctx context.Context) error {
		return p.postJSON(ctx, p.modelURL(p.cfg.GenerationModel, "generateContent"), p.authHeaders(), p.generateRequest(req), &out)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidates", ErrProtocol)
	}

	model := out.ModelVersion
	if model == "" {
		model = p.cfg.GenerationModel
	}
	return &GenerateResult{
		Text:         joinParts(out.Candidates[0].Content),
		Model:        model,
		FinishReason: strings.ToLower(out.Candidates[0].FinishReason),
		Usage: Usage{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// StreamGenerate starts a streaming completion via
// models/{model}:streamGenerateContent?alt=sse.
func (p *GeminiProvider) StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	url := p.modelURL(p.cfg.GenerationModel, "streamGenerateContent") + "?alt=sse"
	body, err := p.openStream(ctx, url, p.authHeaders(), p.generateRequest(req))
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

			var chunk geminiGenerateResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				emit(ctx, out, StreamChunk{Err: fmt.Errorf("%w: decoding chunk: %v", ErrProtocol, err)})
				return
			}
			if len(chunk.Candidates) == 0 {
				continue
			}

			c := StreamChunk{
				Delta:        joinParts(chunk.Candidates[0].Content),
				FinishReason: strings.ToLower(chunk.Candidates[0].FinishReason),
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

type geminiModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HealthCheck probes GET /v1beta/models with the short fixed timeout.
func (p *GeminiProvider) HealthCheck(ctx context.Context) (*Health, error) {
	return p.probe(ctx, func(ctx context.Context) ([]string, error) {
		var out geminiModelsResponse
		if err := p.getJSON(ctx, p.cfg.BaseURL+"/v1beta/models?pageSize=20", p.authHeaders(), &out); err != nil {
			return nil, err
		}
		models := make([]string, 0, len(out.Models))
		for _, m := range out.Models {
			models = append(models, strings.TrimPrefix(m.Name, "models/"))
		}
		return models, nil
	})
}

var _ Provider = (*GeminiProvider)(nil)
