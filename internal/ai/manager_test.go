package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/model"
)

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func newTestManager(gen IGenerator) *Manager {
	return NewManager(gen, gen, gen, gen, gen, ManagerConfig{Timeout: 5})
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	res := newTestManager(&fakeGenerator{out: "```json\n{\"intent\":\"greeting_only\",\"reply\":\"Hello!\"}\n```"}).Classify(ctx, "hi")
	require.False(t, res.IsDegraded())
	require.Equal(t, IntentGreeting, res.Value.Kind)
	require.Equal(t, "Hello!", res.Value.Reply)

	res = newTestManager(&fakeGenerator{out: `{"intent":"needs_answer"}`}).Classify(ctx, "what is the warranty?")
	require.False(t, res.IsDegraded())
	require.Equal(t, IntentNeedsAnswer, res.Value.Kind)
}

func TestClassifyDegrades(t *testing.T) {
	ctx := context.Background()
	cases := []IGenerator{
		&fakeGenerator{err: errors.New("down")},
		&fakeGenerator{out: "not json"},
		&fakeGenerator{out: `{"intent":"weather"}`},
		&fakeGenerator{out: `{"intent":"greeting_only"}`},
	}
	for _, gen := range cases {
		res := newTestManager(gen).Classify(ctx, "hello")
		require.True(t, res.IsDegraded())
		require.Equal(t, IntentNeedsAnswer, res.Value.Kind)
	}
}

func TestRewrite(t *testing.T) {
	ctx := context.Background()
	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: "What is the warranty for model X?"},
		{Role: model.RoleAssistant, Content: "Two years."},
	}

	gen := &fakeGenerator{out: "\"Does the model X warranty cover water damage?\""}
	res := newTestManager(gen).Rewrite(ctx, history, "does it cover water damage?")
	require.False(t, res.IsDegraded())
	require.Equal(t, "Does the model X warranty cover water damage?", res.Value)
	require.Contains(t, gen.prompts[0], "User: What is the warranty for model X?")

	noHistory := &fakeGenerator{out: "ignored"}
	res = newTestManager(noHistory).Rewrite(ctx, nil, "first question")
	require.Equal(t, "first question", res.Value)
	require.Empty(t, noHistory.prompts)

	res = newTestManager(&fakeGenerator{err: errors.New("down")}).Rewrite(ctx, history, "q")
	require.True(t, res.IsDegraded())
	require.Equal(t, "q", res.Value)
}

func TestTranslateCaches(t *testing.T) {
	gen := &fakeGenerator{out: "warranty period"}
	m := newTestManager(gen)
	out, err := m.Translate(context.Background(), "garantiezeit")
	require.NoError(t, err)
	require.Equal(t, "warranty period", out)
	_, err = m.Translate(context.Background(), "garantiezeit")
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "English")
}

func TestAnswerStripsSources(t *testing.T) {
	gen := &fakeGenerator{out: "The warranty lasts two years.\n\nSources: manual.pdf"}
	snippets := []model.ChunkHit{{Filename: "manual.pdf", Content: "Warranty: 2 years"}}
	out, err := newTestManager(gen).Answer(context.Background(), "How long is the warranty?", snippets, nil)
	require.NoError(t, err)
	require.Equal(t, "The warranty lasts two years.", out)
	require.Contains(t, gen.prompts[0], "Warranty: 2 years")
	require.Contains(t, gen.prompts[0], "How long is the warranty?")
}

func TestAnswerPropagatesError(t *testing.T) {
	boom := errors.New("quota")
	_, err := newTestManager(&fakeGenerator{err: boom}).Answer(context.Background(), "q", nil, nil)
	require.ErrorIs(t, err, boom)

	_, err = newTestManager(&fakeGenerator{out: "   "}).Answer(context.Background(), "q", nil, nil)
	require.Error(t, err)
}

func TestJudge(t *testing.T) {
	ctx := context.Background()

	res := newTestManager(&fakeGenerator{out: `{"verdict":"unknown"}`}).Judge(ctx, "q", "I don't know", nil)
	require.False(t, res.IsDegraded())
	require.Equal(t, VerdictUnknown, res.Value)

	res = newTestManager(&fakeGenerator{out: "Verdict: answerable"}).Judge(ctx, "q", "2 years", nil)
	require.False(t, res.IsDegraded())
	require.Equal(t, VerdictAnswerable, res.Value)

	res = newTestManager(&fakeGenerator{err: errors.New("down")}).Judge(ctx, "q", "2 years", nil)
	require.True(t, res.IsDegraded())
	require.Equal(t, VerdictAnswerable, res.Value)

	res = newTestManager(&fakeGenerator{out: "maybe"}).Judge(ctx, "q", "2 years", nil)
	require.True(t, res.IsDegraded())
	require.Equal(t, VerdictAnswerable, res.Value)
}

func TestJudgeNegatedVerdicts(t *testing.T) {
	ctx := context.Background()
	for _, out := range []string{
		`{"verdict":"unanswerable"}`,
		`{"verdict":"not answerable"}`,
		"The draft is unanswerable.",
		"The question is not answerable from the snippets.",
		"It isn't answerable.",
	} {
		res := newTestManager(&fakeGenerator{out: out}).Judge(ctx, "q", "draft", nil)
		require.False(t, res.IsDegraded(), out)
		require.Equal(t, VerdictUnknown, res.Value, out)
	}

	res := newTestManager(&fakeGenerator{out: "answerable, but also unknown"}).Judge(ctx, "q", "draft", nil)
	require.True(t, res.IsDegraded())
}

func TestStripSources(t *testing.T) {
	require.Equal(t, "Answer.", StripSources("Answer.\n**Sources:**\n- a.pdf\n- b.pdf"))
	require.Equal(t, "Answer.", StripSources("Answer.\n\nReferences: a.pdf"))
	require.Equal(t, "No trailer here.", StripSources("No trailer here.\n"))
	require.Equal(t, "Open sources: are fine inline.", StripSources("Open sources: are fine inline."))
	require.Equal(t, "Answer.", StripSources("Answer.\nSources: [1], [2]"))
	require.Equal(t, "Answer.", StripSources("Answer.\nSources:\n1. warranty policy.pdf\n2. https://example.com/faq"))
}

func TestStripSourcesKeepsMidTextReferences(t *testing.T) {
	text := "To apply, follow these steps.\nReferences: two former employers are required.\nThe warranty period is 24 months."
	require.Equal(t, text, StripSources(text))

	text = "Answer.\nSources: a.pdf\nPlease contact HR for more."
	require.Equal(t, text, StripSources(text))
}

func TestBuildAnswerPromptTruncatesContext(t *testing.T) {
	snippets := []model.ChunkHit{{Filename: "a.txt", Content: strings.Repeat("x", 500)}}
	prompt := BuildAnswerPrompt("question?", snippets, nil, 100)
	require.NotContains(t, prompt, strings.Repeat("x", 200))
	require.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "Now respond:"))
	require.Contains(t, prompt, "question?")
}
