package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	Temperature *float64 `json:"temperature"`
	System      string   `json:"system"`
	// Dimensions asks text-embedding-3 models for shorter vectors so they
	// fit the configured column width.
	Dimensions int `json:"dimensions"`
}

// openAIClient talks to any OpenAI compatible endpoint.
type openAIClient struct {
	name    string
	apiKey  string
	baseURL string
	headers map[string]string
	client  *http.Client
}

func newOpenAIClient(name string, cfg *openAIConfig, defaultBaseURL string) openAIClient {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return openAIClient{name: name, apiKey: strings.TrimSpace(cfg.APIKey), baseURL: baseURL, client: http.DefaultClient}
}

func (c openAIClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed: %s: %s", c.name, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type openAIProvider struct {
	openAIClient
	temperature *float64
	system      string
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	msgs := make([]openAIChatMsg, 0, 2)
	if p.system != "" {
		msgs = append(msgs, openAIChatMsg{Role: "system", Content: p.system})
	}
	msgs = append(msgs, openAIChatMsg{Role: "user", Content: prompt})
	var out openAIChatResponse
	if err := p.post(ctx, "/chat/completions", openAIChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: p.temperature,
	}, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

type openAIEmbedProvider struct {
	openAIClient
	dimensions int
}

func (p *openAIEmbedProvider) Name() string {
	return p.name
}

// Embed sends the whole batch in one request; results are placed by index.
func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	var out openAIEmbedResponse
	if err := p.post(ctx, "/embeddings", openAIEmbedRequest{Model: model, Input: texts, Dimensions: p.dimensions}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(out.Data), len(texts))
	}
	res := make([][]float32, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(res) || res[item.Index] != nil {
			return nil, fmt.Errorf("openai embedding index %d out of range", item.Index)
		}
		res[item.Index] = item.Embedding
	}
	return res, nil
}

func newChatProvider(client openAIClient, cfg *openAIConfig) *openAIProvider {
	return &openAIProvider{
		openAIClient: client,
		temperature:  cfg.Temperature,
		system:       strings.TrimSpace(cfg.System),
	}
}

func createOpenAIFactory(args interface{}) (IAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return newChatProvider(newOpenAIClient("openai", cfg, defaultOpenAIBaseURL), cfg), nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("openai dimensions must not be negative")
	}
	return &openAIEmbedProvider{
		openAIClient: newOpenAIClient("openai", cfg, defaultOpenAIBaseURL),
		dimensions:   cfg.Dimensions,
	}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
