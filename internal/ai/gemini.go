package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey      string   `json:"api_key"`
	Temperature *float32 `json:"temperature"`
	System      string   `json:"system"`
	Dimensions  int32    `json:"dimensions"`
}

// geminiClient creates the SDK client on first use and keeps it.
type geminiClient struct {
	apiKey string

	mu     sync.Mutex
	client *genai.Client
}

func (c *geminiClient) get(ctx context.Context) (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

type geminiProvider struct {
	*geminiClient
	config *genai.GenerateContentConfig
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	client, err := p.get(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), p.config)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

type geminiEmbedProvider struct {
	*geminiClient
	dimensions int32
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

func (p *geminiEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	client, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if p.dimensions > 0 {
		config.OutputDimensionality = &p.dimensions
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, item := range resp.Embeddings {
		if item == nil || len(item.Values) == 0 {
			return nil, fmt.Errorf("gemini embedding %d is empty", i)
		}
		out[i] = item.Values
	}
	return out, nil
}

func createGeminiFactory(args interface{}) (IAIProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	genCfg := &genai.GenerateContentConfig{Temperature: cfg.Temperature}
	if system := strings.TrimSpace(cfg.System); system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return &geminiProvider{
		geminiClient: &geminiClient{apiKey: strings.TrimSpace(cfg.APIKey)},
		config:       genCfg,
	}, nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("gemini dimensions must not be negative")
	}
	return &geminiEmbedProvider{
		geminiClient: &geminiClient{apiKey: strings.TrimSpace(cfg.APIKey)},
		dimensions:   cfg.Dimensions,
	}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}

// decodeConfig converts the loosely typed provider data block into dst.
func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
