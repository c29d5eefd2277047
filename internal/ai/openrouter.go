package ai

import "strings"

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// openrouterConfig adds the attribution headers OpenRouter ranks apps by.
type openrouterConfig struct {
	openAIConfig
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

func createOpenRouterFactory(args interface{}) (IAIProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	client := newOpenAIClient("openrouter", &cfg.openAIConfig, defaultOpenRouterBaseURL)
	client.headers = map[string]string{}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		client.headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		client.headers["X-Title"] = v
	}
	return newChatProvider(client, &cfg.openAIConfig), nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
