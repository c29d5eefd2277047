package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var errNoBackend = errors.New("no backend configured")

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// fallback calls run for each named backend in order and returns the first
// success. The last error is returned when every backend fails.
func fallback[B any, T any](ctx context.Context, kind string, names []string, backends []B, run func(B) (T, error)) (T, error) {
	var (
		zero    T
		lastErr = errNoBackend
	)
	for i, b := range backends {
		res, err := run(b)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn(kind+" backend failed, trying next",
			zap.Int("index", i), zap.String("name", names[i]), zap.Error(err))
	}
	return zero, lastErr
}

type groupGenerator struct {
	names []string
	items []IGenerator
}

// NewGroupGenerator returns nil when no entry has a generator.
func NewGroupGenerator(entries []GeneratorEntry) IGenerator {
	g := &groupGenerator{}
	for _, e := range entries {
		if e.Generator == nil {
			continue
		}
		g.names = append(g.names, e.Name)
		g.items = append(g.items, e.Generator)
	}
	if len(g.items) == 0 {
		return nil
	}
	return g
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return fallback(ctx, "generator", g.names, g.items, func(gen IGenerator) (string, error) {
		return gen.Generate(ctx, prompt)
	})
}

// groupEmbedder mixes replicas of one embedding space only; vectors from
// different models are not comparable.
type groupEmbedder struct {
	names []string
	items []IEmbedder
}

// NewGroupEmbedder returns nil when no entry has an embedder.
func NewGroupEmbedder(entries []EmbedderEntry) IEmbedder {
	g := &groupEmbedder{}
	for _, e := range entries {
		if e.Embedder == nil {
			continue
		}
		g.names = append(g.names, e.Name)
		g.items = append(g.items, e.Embedder)
	}
	if len(g.items) == 0 {
		return nil
	}
	return g
}

func (g *groupEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return fallback(ctx, "embedder", g.names, g.items, func(e IEmbedder) ([][]float32, error) {
		return e.EmbedBatch(ctx, texts, taskType)
	})
}

// ModelName joins the entry names so cache keys change with the group.
func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.names))
	for _, n := range g.names {
		if n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, "|")
}
