package ai

import (
	"fmt"
	"strings"

	"github.com/xxxsen/ragdesk/internal/config"
)

// BuildGenerator creates a fallback group from the configured generators.
func BuildGenerator(items []config.ProviderConfig) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, len(items))
	for i, item := range items {
		provider, err := NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %d: %w", i, err)
		}
		if strings.TrimSpace(item.Model) == "" {
			return nil, fmt.Errorf("generator %d: model is required", i)
		}
		entries = append(entries, GeneratorEntry{
			Name:      entryName(item),
			Generator: NewGenerator(provider, item.Model),
		})
	}
	gen := NewGroupGenerator(entries)
	if gen == nil {
		return nil, fmt.Errorf("no generator configured")
	}
	return gen, nil
}

// BuildEmbedder creates a fallback group from the configured embedders.
func BuildEmbedder(items []config.ProviderConfig, dim int) (IEmbedder, error) {
	entries := make([]EmbedderEntry, 0, len(items))
	for i, item := range items {
		provider, err := NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedder %d: %w", i, err)
		}
		if strings.TrimSpace(item.Model) == "" {
			return nil, fmt.Errorf("embedder %d: model is required", i)
		}
		entries = append(entries, EmbedderEntry{
			Name:     entryName(item) + ":" + item.Model,
			Embedder: NewEmbedder(provider, item.Model, dim),
		})
	}
	emb := NewGroupEmbedder(entries)
	if emb == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return emb, nil
}

func entryName(item config.ProviderConfig) string {
	if name := strings.TrimSpace(item.Name); name != "" {
		return name
	}
	return strings.ToLower(strings.TrimSpace(item.Provider))
}
