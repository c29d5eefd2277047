package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
)

const (
	DefaultUnknownReply = "I don't know based on the available documents."
	maxTitleRunes       = 60
	maxQuestionRunes    = 4000
)

type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	GetOwned(ctx context.Context, tenantID, userID, chatID string) (*model.Chat, error)
	Latest(ctx context.Context, tenantID, userID string) (*model.Chat, error)
	ListByUser(ctx context.Context, tenantID, userID string, offset, limit uint) ([]model.Chat, error)
}

// Assistant is the set of model calls one answer goes through.
type Assistant interface {
	Classify(ctx context.Context, question string) ai.Result[ai.Intent]
	Rewrite(ctx context.Context, history []model.ChatMessage, question string) ai.Result[string]
	Answer(ctx context.Context, question string, snippets []model.ChunkHit, history []model.ChatMessage) (string, error)
	Judge(ctx context.Context, question, draft string, snippets []model.ChunkHit) ai.Result[string]
}

type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, topK int) (*RetrievalResult, error)
}

type ChatOptions struct {
	TopK           int
	MaxSnippets    int
	RewriteHistory int
	PromptHistory  int
	UnknownReply   string
}

type AnswerInput struct {
	TenantID string
	UserID   string
	ChatID   string
	Question string
}

type AnswerResult struct {
	ChatID    string           `json:"chat_id"`
	MessageID string           `json:"message_id"`
	Answer    string           `json:"answer"`
	Sources   []string         `json:"sources"`
	Citations []model.Citation `json:"citations"`
	Intent    string           `json:"intent"`
	Grounded  bool             `json:"grounded"`
	Degraded  []string         `json:"degraded,omitempty"`
}

type ChatService struct {
	chats     ChatStore
	memory    *Memory
	assistant Assistant
	retriever Retriever
	opts      ChatOptions
}

func NewChatService(chats ChatStore, memory *Memory, assistant Assistant, retriever Retriever, opts ChatOptions) *ChatService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxSnippets <= 0 {
		opts.MaxSnippets = opts.TopK
	}
	if opts.RewriteHistory <= 0 {
		opts.RewriteHistory = 7
	}
	if opts.PromptHistory <= 0 {
		opts.PromptHistory = 6
	}
	if strings.TrimSpace(opts.UnknownReply) == "" {
		opts.UnknownReply = DefaultUnknownReply
	}
	return &ChatService{chats: chats, memory: memory, assistant: assistant, retriever: retriever, opts: opts}
}

// Answer runs one question through classify, rewrite, retrieve, generate
// and judge, then stores the user and assistant turns together. Only a
// failed generation aborts the turn; the other model steps degrade.
func (s *ChatService) Answer(ctx context.Context, in AnswerInput) (*AnswerResult, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" || in.TenantID == "" || in.UserID == "" {
		return nil, appErr.ErrInvalid
	}
	if len([]rune(question)) > maxQuestionRunes {
		return nil, fmt.Errorf("%w: question too long", appErr.ErrInvalid)
	}
	chat, err := s.resolveChat(ctx, in.TenantID, in.UserID, in.ChatID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("tenant_id", in.TenantID),
		zap.String("user_id", in.UserID),
		zap.String("chat_id", chat.ID),
	)
	history, err := s.memory.Recent(ctx, chat.ID, max(s.opts.RewriteHistory, s.opts.PromptHistory))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	res := &AnswerResult{ChatID: chat.ID, Sources: []string{}, Citations: []model.Citation{}}
	degrade := func(step string, reason error) {
		logger.Warn("answer step degraded", zap.String("step", step), zap.Error(reason))
		res.Degraded = append(res.Degraded, step)
	}

	intent := s.assistant.Classify(ctx, question)
	if intent.IsDegraded() {
		degrade("classify", intent.Reason)
	}
	res.Intent = intent.Value.Kind
	if intent.Value.Kind == ai.IntentGreeting {
		res.Answer = intent.Value.Reply
		return s.finalize(ctx, chat, question, res)
	}

	rewritten := s.assistant.Rewrite(ctx, tailMessages(history, s.opts.RewriteHistory), question)
	if rewritten.IsDegraded() {
		degrade("rewrite", rewritten.Reason)
	}

	retrieved, err := s.retriever.Retrieve(ctx, in.TenantID, rewritten.Value, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	logger.Debug("retrieval done",
		zap.String("query", retrieved.Query),
		zap.Int("hits", len(retrieved.Hits)),
		zap.Float64("top_score", retrieved.TopScore()),
		zap.Bool("fallback", retrieved.Fallback))
	if !retrieved.Confident {
		res.Answer = s.opts.UnknownReply
		return s.finalize(ctx, chat, question, res)
	}

	snippets := retrieved.Hits
	if len(snippets) > s.opts.MaxSnippets {
		snippets = snippets[:s.opts.MaxSnippets]
	}
	draft, err := s.assistant.Answer(ctx, question, snippets, tailMessages(history, s.opts.PromptHistory))
	if err != nil {
		logger.Error("answer generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", appErr.ErrGeneration, err)
	}

	verdict := s.assistant.Judge(ctx, question, draft, snippets)
	if verdict.IsDegraded() {
		degrade("judge", verdict.Reason)
	}
	res.Answer = draft
	if verdict.Value == ai.VerdictAnswerable {
		res.Grounded = true
		res.Sources = sourceFilenames(snippets)
		res.Citations = citationsFrom(snippets)
		if len(res.Sources) > 0 {
			res.Answer = draft + "\n\nSources: " + strings.Join(res.Sources, ", ")
		}
	}
	return s.finalize(ctx, chat, question, res)
}

func (s *ChatService) finalize(ctx context.Context, chat *model.Chat, question string, res *AnswerResult) (*AnswerResult, error) {
	now := timeutil.NowMilli()
	userMsg := &model.ChatMessage{
		ID:        newID(),
		ChatID:    chat.ID,
		Role:      model.RoleUser,
		Content:   question,
		Citations: []model.Citation{},
		Ctime:     now,
	}
	assistantMsg := &model.ChatMessage{
		ID:        newID(),
		ChatID:    chat.ID,
		Role:      model.RoleAssistant,
		Content:   res.Answer,
		Citations: res.Citations,
		Ctime:     now,
	}
	if err := s.memory.Append(ctx, chat.ID, []*model.ChatMessage{userMsg, assistantMsg}, chatTitle(question), now); err != nil {
		return nil, fmt.Errorf("save exchange: %w", err)
	}
	res.MessageID = assistantMsg.ID
	return res, nil
}

// resolveChat reuses the requested chat when the caller owns it, then the
// caller's latest chat, and creates one otherwise.
func (s *ChatService) resolveChat(ctx context.Context, tenantID, userID, chatID string) (*model.Chat, error) {
	if chatID != "" {
		chat, err := s.chats.GetOwned(ctx, tenantID, userID, chatID)
		if err == nil {
			return chat, nil
		}
		if !appErr.IsNotFound(err) {
			return nil, err
		}
	}
	chat, err := s.chats.Latest(ctx, tenantID, userID)
	if err == nil {
		return chat, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, err
	}
	now := timeutil.NowMilli()
	chat = &model.Chat{
		ID:       newID(),
		TenantID: tenantID,
		UserID:   userID,
		Title:    model.DefaultChatTitle,
		Ctime:    now,
		Mtime:    now,
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (s *ChatService) ListChats(ctx context.Context, tenantID, userID string, offset, limit uint) ([]model.Chat, error) {
	return s.chats.ListByUser(ctx, tenantID, userID, offset, limit)
}

func (s *ChatService) ListMessages(ctx context.Context, tenantID, userID, chatID string, offset, limit uint) ([]model.ChatMessage, error) {
	if _, err := s.chats.GetOwned(ctx, tenantID, userID, chatID); err != nil {
		return nil, err
	}
	return s.memory.List(ctx, chatID, offset, limit)
}

func sourceFilenames(hits []model.ChunkHit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Filename == "" {
			continue
		}
		if _, ok := seen[h.Filename]; ok {
			continue
		}
		seen[h.Filename] = struct{}{}
		out = append(out, h.Filename)
	}
	return out
}

func citationsFrom(hits []model.ChunkHit) []model.Citation {
	out := make([]model.Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.Citation{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Filename:   h.Filename,
			Score:      h.Score,
		})
	}
	return out
}

func chatTitle(question string) string {
	runes := []rune(strings.Join(strings.Fields(question), " "))
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes]) + "..."
	}
	return string(runes)
}
