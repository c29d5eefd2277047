package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/ragdesk/internal/model"
)

const (
	IntentGreeting    = "greeting_only"
	IntentNeedsAnswer = "needs_answer"

	VerdictAnswerable = "answerable"
	VerdictUnknown    = "unknown"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
	PivotLanguage string
}

type Intent struct {
	Kind  string `json:"intent"`
	Reply string `json:"reply"`
}

type Manager struct {
	classifier IGenerator
	rewriter   IGenerator
	answerer   IGenerator
	judge      IGenerator
	translator IGenerator
	cfg        ManagerConfig
	cache      *expirable.LRU[string, string]
}

func NewManager(
	classifier IGenerator,
	rewriter IGenerator,
	answerer IGenerator,
	judge IGenerator,
	translator IGenerator,
	cfg ManagerConfig,
) *Manager {
	if strings.TrimSpace(cfg.PivotLanguage) == "" {
		cfg.PivotLanguage = "English"
	}
	return &Manager{
		classifier: classifier,
		rewriter:   rewriter,
		answerer:   answerer,
		judge:      judge,
		translator: translator,
		cfg:        cfg,
		cache:      expirable.NewLRU[string, string](2048, nil, 30*time.Minute),
	}
}

// Classify decides whether the message is small talk. Any failure degrades
// to needs_answer so a real question is never dropped.
func (m *Manager) Classify(ctx context.Context, question string) Result[Intent] {
	def := Intent{Kind: IntentNeedsAnswer}
	if m.classifier == nil {
		return Degraded(def, fmt.Errorf("classifier not configured"))
	}
	prompt := fmt.Sprintf(`You are an intent classifier for a document question answering assistant.
Decide whether the USER MESSAGE is only a greeting or small talk (hello, thanks, bye) or whether it needs an answer from documents.
- Reply with a JSON object only: {"intent": "greeting_only" | "needs_answer", "reply": "<short friendly greeting reply>"}
- Write "reply" in the same language as the user message. Leave it empty for needs_answer.

USER MESSAGE:
%s`, question)
	out, err := m.generateText(ctx, m.classifier, prompt)
	if err != nil {
		return Degraded(def, err)
	}
	intent, err := parseIntent(out)
	if err != nil {
		return Degraded(def, err)
	}
	if intent.Kind == IntentGreeting && intent.Reply == "" {
		return Degraded(def, fmt.Errorf("greeting without reply"))
	}
	return Ok(intent)
}

// Rewrite turns a follow-up into a standalone query using history. Any
// failure degrades to the original question.
func (m *Manager) Rewrite(ctx context.Context, history []model.ChatMessage, question string) Result[string] {
	if len(history) == 0 {
		return Ok(question)
	}
	if m.rewriter == nil {
		return Degraded(question, fmt.Errorf("rewriter not configured"))
	}
	prompt := fmt.Sprintf(`You rewrite follow-up questions for a search engine.
Using the CONVERSATION, rewrite the QUESTION into one standalone question.
- Resolve pronouns and references (it, that, they, the second one) to what they refer to.
- Keep the same language as the QUESTION.
- Do not answer the question. Output ONLY the rewritten question.

CONVERSATION:
%s

QUESTION:
%s`, formatHistory(history), question)
	out, err := m.generateText(ctx, m.rewriter, prompt)
	if err != nil {
		return Degraded(question, err)
	}
	out = strings.Trim(strings.TrimSpace(out), "\"")
	if out == "" {
		return Degraded(question, fmt.Errorf("empty rewrite"))
	}
	return Ok(out)
}

// Translate renders the query in the pivot language for the retrieval fallback.
func (m *Manager) Translate(ctx context.Context, text string) (string, error) {
	if m.translator == nil {
		return "", fmt.Errorf("translator not configured")
	}
	key := cacheKey("translate:"+m.cfg.PivotLanguage, text)
	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}
	prompt := fmt.Sprintf(`Translate the following search query into %s.
- Keep names, numbers and product terms unchanged.
- Output ONLY the translated query.

QUERY:
%s`, m.cfg.PivotLanguage, text)
	out, err := m.generateText(ctx, m.translator, prompt)
	if err != nil {
		return "", err
	}
	m.cache.Add(key, out)
	return out, nil
}

// Answer drafts a reply grounded in snippets. Errors are returned as-is;
// the caller treats them as fatal.
func (m *Manager) Answer(ctx context.Context, question string, snippets []model.ChunkHit, history []model.ChatMessage) (string, error) {
	if m.answerer == nil {
		return "", fmt.Errorf("answerer not configured")
	}
	prompt := BuildAnswerPrompt(question, snippets, history, m.cfg.MaxInputChars)
	out, err := m.generateText(ctx, m.answerer, prompt)
	if err != nil {
		return "", err
	}
	return StripSources(out), nil
}

// Judge asks whether draft is supported by snippets. Any failure degrades to
// answerable.
func (m *Manager) Judge(ctx context.Context, question, draft string, snippets []model.ChunkHit) Result[string] {
	if m.judge == nil {
		return Degraded(VerdictAnswerable, fmt.Errorf("judge not configured"))
	}
	prompt := fmt.Sprintf(`You check answers produced by a retrieval assistant.
Given the CONTEXT, the QUESTION and the DRAFT ANSWER, decide:
- "answerable": the draft actually answers the question using facts found in the context.
- "unknown": the draft says it does not know, refuses, or relies on facts not in the context.
Reply with a JSON object only: {"verdict": "answerable" | "unknown"}

CONTEXT:
%s

QUESTION:
%s

DRAFT ANSWER:
%s`, formatSnippets(snippets), question, draft)
	out, err := m.generateText(ctx, m.judge, prompt)
	if err != nil {
		return Degraded(VerdictAnswerable, err)
	}
	verdict, err := parseVerdict(out)
	if err != nil {
		return Degraded(VerdictAnswerable, err)
	}
	return Ok(verdict)
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

const systemRules = `You are a retrieval-augmented assistant for an organization's documents.
- Answer ONLY using the provided context snippets.
- If the answer is not in the context, say you don't know. Do not invent facts or suggest contacts.
- Answer in the same language as the question.
- Do not list sources; they are added automatically.`

// BuildAnswerPrompt assembles rules, snippets, recent history and the verbatim
// question. maxChars bounds the snippet section when positive.
func BuildAnswerPrompt(question string, snippets []model.ChunkHit, history []model.ChatMessage, maxChars int) string {
	ctxText := formatSnippets(snippets)
	if maxChars > 0 && len(ctxText) > maxChars {
		ctxText = truncateRunes(ctxText, maxChars)
	}
	var sb strings.Builder
	sb.WriteString(systemRules)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(ctxText)
	if len(history) > 0 {
		sb.WriteString("\n\nConversation so far:\n")
		sb.WriteString(formatHistory(history))
	}
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nNow respond:\n")
	return sb.String()
}

var (
	sourcesLine = regexp.MustCompile(`(?im)^[ \t]*[*_#>\-]*[ \t]*(sources?|references?)[ \t]*[*_]*[ \t]*:[*_]*`)
	sourceItem  = regexp.MustCompile(`(?i)^(\[\d+\]|https?://\S+|.*\.[a-z0-9]{1,5}(\)|\])?)$`)
	itemBullet  = regexp.MustCompile(`^([*\-+]|\d+[.)])\s+`)
)

// StripSources removes a trailing "Sources:" block the model may append.
// The block is only cut when everything after the header lists sources.
func StripSources(text string) string {
	locs := sourcesLine.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(text)
	}
	last := locs[len(locs)-1]
	for _, line := range strings.Split(text[last[1]:], "\n") {
		if !isSourceLine(line) {
			return strings.TrimSpace(text)
		}
	}
	return strings.TrimSpace(text[:last[0]])
}

func isSourceLine(line string) bool {
	line = strings.TrimSpace(line)
	line = itemBullet.ReplaceAllString(line, "")
	for _, item := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' }) {
		item = strings.Trim(strings.TrimSpace(item), "*_`.")
		if item == "" {
			continue
		}
		if !sourceItem.MatchString(item) {
			return false
		}
	}
	return true
}

func formatSnippets(snippets []model.ChunkHit) string {
	if len(snippets) == 0 {
		return "(no context)"
	}
	parts := make([]string, 0, len(snippets))
	for i, s := range snippets {
		parts = append(parts, fmt.Sprintf("[%d] (%s)\n%s", i+1, s.Filename, s.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func formatHistory(history []model.ChatMessage) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "User"
		if msg.Role == model.RoleAssistant {
			role = "Assistant"
		}
		lines = append(lines, role+": "+strings.TrimSpace(msg.Content))
	}
	return strings.Join(lines, "\n")
}

func parseIntent(output string) (Intent, error) {
	var intent Intent
	if err := json.Unmarshal([]byte(extractJSONObject(output)), &intent); err != nil {
		return Intent{}, fmt.Errorf("parse intent: %w", err)
	}
	intent.Kind = strings.ToLower(strings.TrimSpace(intent.Kind))
	intent.Reply = strings.TrimSpace(intent.Reply)
	switch intent.Kind {
	case IntentGreeting, IntentNeedsAnswer:
		return intent, nil
	default:
		return Intent{}, fmt.Errorf("unknown intent %q", intent.Kind)
	}
}

func parseVerdict(output string) (string, error) {
	var body struct {
		Verdict string `json:"verdict"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(output)), &body); err == nil {
		switch v := strings.ToLower(strings.TrimSpace(body.Verdict)); v {
		case VerdictAnswerable, VerdictUnknown:
			return v, nil
		}
	}
	text := output
	if body.Verdict != "" {
		text = body.Verdict
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var pos, neg bool
	for i, w := range words {
		switch w {
		case VerdictUnknown, "unanswerable":
			neg = true
		case VerdictAnswerable:
			if i > 0 && negations[words[i-1]] {
				neg = true
			} else {
				pos = true
			}
		}
	}
	switch {
	case neg && !pos:
		return VerdictUnknown, nil
	case pos && !neg:
		return VerdictAnswerable, nil
	}
	return "", fmt.Errorf("unrecognised verdict: %q", output)
}

// negations flip a following "answerable". "t" covers isn't and wasn't.
var negations = map[string]bool{"not": true, "no": true, "never": true, "t": true}

func extractJSONObject(output string) string {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		clean = clean[start : end+1]
	}
	return clean
}

func truncateRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func cacheKey(feature, text string) string {
	hash := sha256.Sum256([]byte(text))
	return feature + ":" + hex.EncodeToString(hash[:])
}
