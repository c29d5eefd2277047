package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/repo"
)

// memDB is an in-memory stand-in for the postgres tables.
type memDB struct {
	mu        sync.Mutex
	docs      map[string]*model.Document
	chunks    []model.DocumentChunk
	chats     []*model.Chat
	messages  []model.ChatMessage
	feedbacks []model.Feedback

	commits        int
	openTxs        int
	failInsertCall int
	insertCalls    int
	failDelete     bool
	hideHash       bool
}

func newMemDB() *memDB {
	return &memDB{docs: map[string]*model.Document{}}
}

func (m *memDB) docCount(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.docs {
		if d.TenantID == tenantID {
			n++
		}
	}
	return n
}

func (m *memDB) chunkCount(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.chunks {
		if d, ok := m.docs[c.DocumentID]; ok && d.TenantID == tenantID {
			n++
		}
	}
	return n
}

func (m *memDB) messagesOf(chatID string) []model.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ChatMessage
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

// ingest store

type memIngest struct{ db *memDB }

func (s memIngest) GetByHash(ctx context.Context, tenantID, hash string) (*model.Document, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.hideHash {
		return nil, appErr.ErrNotFound
	}
	for _, d := range s.db.docs {
		if d.TenantID == tenantID && d.ContentHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s memIngest) Begin(ctx context.Context) (repo.IngestTx, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.openTxs++
	return &memTx{db: s.db}, nil
}

func (db *memDB) openTxCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.openTxs
}

func (s memIngest) Delete(ctx context.Context, tenantID, docID string) error {
	return memDocs(s).Delete(ctx, tenantID, docID)
}

func (s memIngest) SetArchiveKey(ctx context.Context, docID, key string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.docs[docID]
	if !ok {
		return appErr.ErrNotFound
	}
	d.ArchiveKey = key
	return nil
}

type memTx struct {
	db     *memDB
	doc    *model.Document
	chunks []model.DocumentChunk
	ready  []string
	done   bool
}

func (t *memTx) CreateDocument(ctx context.Context, doc *model.Document) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for _, d := range t.db.docs {
		if d.TenantID == doc.TenantID && d.ContentHash == doc.ContentHash {
			return appErr.ErrDuplicateDocument
		}
	}
	cp := *doc
	t.doc = &cp
	return nil
}

func (t *memTx) InsertChunks(ctx context.Context, docID string, chunks []model.DocumentChunk) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.insertCalls++
	if t.db.failInsertCall > 0 && t.db.insertCalls == t.db.failInsertCall {
		return errors.New("insert failed")
	}
	t.chunks = append(t.chunks, chunks...)
	return nil
}

func (t *memTx) MarkReady(ctx context.Context, docID string) error {
	t.ready = append(t.ready, docID)
	return nil
}

func (t *memTx) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return errors.New("tx done")
	}
	t.done = true
	t.db.openTxs--
	t.db.commits++
	if t.doc != nil {
		t.db.docs[t.doc.ID] = t.doc
	}
	for _, c := range t.chunks {
		t.db.chunks = append(t.db.chunks, c)
		if d, ok := t.db.docs[c.DocumentID]; ok {
			d.ChunkCount++
		}
	}
	for _, id := range t.ready {
		if d, ok := t.db.docs[id]; ok {
			d.State = model.DocumentStateReady
		}
	}
	return nil
}

func (t *memTx) Rollback() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if !t.done {
		t.done = true
		t.db.openTxs--
	}
	return nil
}

// documents

type memDocs struct{ db *memDB }

func (s memDocs) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.docs[docID]
	if !ok || d.TenantID != tenantID {
		return nil, appErr.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s memDocs) ListByTenant(ctx context.Context, tenantID string, offset, limit uint) ([]model.Document, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.Document
	for _, d := range s.db.docs {
		if d.TenantID == tenantID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memDocs) Delete(ctx context.Context, tenantID, docID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failDelete {
		return errors.New("delete failed")
	}
	d, ok := s.db.docs[docID]
	if !ok || d.TenantID != tenantID {
		return appErr.ErrNotFound
	}
	delete(s.db.docs, docID)
	kept := s.db.chunks[:0]
	for _, c := range s.db.chunks {
		if c.DocumentID != docID {
			kept = append(kept, c)
		}
	}
	s.db.chunks = kept
	return nil
}

func (s memDocs) ListStale(ctx context.Context, cutoff int64, limit uint) ([]model.Document, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.Document
	for _, d := range s.db.docs {
		if d.State == model.DocumentStateIngesting && d.Mtime < cutoff {
			out = append(out, *d)
		}
	}
	if uint(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memDocs) DeleteIfIngesting(ctx context.Context, docID string, cutoff int64) (bool, error) {
	s.db.mu.Lock()
	d, ok := s.db.docs[docID]
	s.db.mu.Unlock()
	if !ok || d.State != model.DocumentStateIngesting || d.Mtime >= cutoff {
		return false, nil
	}
	return true, s.Delete(ctx, d.TenantID, docID)
}

// Search scores ready chunks of one tenant by dot product of unit vectors.
func (s memDocs) Search(ctx context.Context, tenantID string, query []float32, limit int) ([]model.ChunkHit, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var hits []model.ChunkHit
	for _, c := range s.db.chunks {
		d, ok := s.db.docs[c.DocumentID]
		if !ok || d.TenantID != tenantID || d.State != model.DocumentStateReady {
			continue
		}
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(c.Embedding[i])
		}
		hits = append(hits, model.ChunkHit{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Filename:   d.Filename,
			Position:   c.Position,
			Content:    c.Content,
			Score:      dot,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// chats and messages

type memChats struct{ db *memDB }

func (s memChats) Create(ctx context.Context, chat *model.Chat) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *chat
	s.db.chats = append(s.db.chats, &cp)
	return nil
}

func (s memChats) GetOwned(ctx context.Context, tenantID, userID, chatID string) (*model.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, c := range s.db.chats {
		if c.ID == chatID && c.TenantID == tenantID && c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s memChats) Latest(ctx context.Context, tenantID, userID string) (*model.Chat, error) {
	chats, _ := s.ListByUser(ctx, tenantID, userID, 0, 1)
	if len(chats) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &chats[0], nil
}

func (s memChats) ListByUser(ctx context.Context, tenantID, userID string, offset, limit uint) ([]model.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.Chat
	for i := len(s.db.chats) - 1; i >= 0; i-- {
		c := s.db.chats[i]
		if c.TenantID == tenantID && c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mtime > out[j].Mtime })
	if limit > 0 && uint(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memMessages struct{ db *memDB }

func (s memMessages) ListRecent(ctx context.Context, chatID string, limit uint) ([]model.ChatMessage, error) {
	msgs := s.db.messagesOf(chatID)
	if uint(len(msgs)) > limit {
		msgs = msgs[uint(len(msgs))-limit:]
	}
	return msgs, nil
}

func (s memMessages) ListByChat(ctx context.Context, chatID string, offset, limit uint) ([]model.ChatMessage, error) {
	return s.db.messagesOf(chatID), nil
}

func (s memMessages) AppendExchange(ctx context.Context, chatID string, msgs []*model.ChatMessage, title string, mtime int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var chat *model.Chat
	for _, c := range s.db.chats {
		if c.ID == chatID {
			chat = c
		}
	}
	if chat == nil {
		return appErr.ErrNotFound
	}
	for _, msg := range msgs {
		s.db.messages = append(s.db.messages, *msg)
	}
	chat.Mtime = mtime
	if chat.Title == model.DefaultChatTitle && title != "" {
		chat.Title = title
	}
	return nil
}

func (s memMessages) GetOwned(ctx context.Context, tenantID, userID, messageID string) (*model.ChatMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, msg := range s.db.messages {
		if msg.ID != messageID {
			continue
		}
		for _, c := range s.db.chats {
			if c.ID == msg.ChatID && c.TenantID == tenantID && c.UserID == userID {
				cp := msg
				return &cp, nil
			}
		}
	}
	return nil, appErr.ErrNotFound
}

type memFeedbacks struct{ db *memDB }

func (s memFeedbacks) Create(ctx context.Context, fb *model.Feedback) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, f := range s.db.feedbacks {
		if f.MessageID == fb.MessageID && f.UserID == fb.UserID {
			return appErr.ErrConflict
		}
	}
	s.db.feedbacks = append(s.db.feedbacks, *fb)
	return nil
}

// wordEmbedProvider hashes words into a fixed number of buckets, so texts
// sharing words are close. Output is normalised by ai.NewEmbedder.
type wordEmbedProvider struct {
	dim     int
	calls   int
	failOn  int
	batches []int
	// openTxs, when set, is sampled on every call into openAtCall.
	openTxs    func() int
	openAtCall []int
}

func (p *wordEmbedProvider) Name() string { return "words" }

func (p *wordEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	p.calls++
	p.batches = append(p.batches, len(texts))
	if p.openTxs != nil {
		p.openAtCall = append(p.openAtCall, p.openTxs())
	}
	if p.failOn > 0 && p.calls == p.failOn {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, p.dim)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[int(h.Sum32())%p.dim]++
		}
		if len(words) == 0 {
			vec[0] = 1
		}
		out[i] = vec
	}
	return out, nil
}

func newWordEmbedder() (*wordEmbedProvider, ai.IEmbedder) {
	p := &wordEmbedProvider{dim: 256}
	return p, ai.NewEmbedder(p, "words", 256)
}

// scriptedGenerator answers each prompt template with a canned reply.
type scriptedGenerator struct {
	mu          sync.Mutex
	greetings   map[string]string
	rewrite     string
	translation string
	translate   error
	answer      string
	answerErr   error
	verdict     string
	classifyErr error
	judgeErr    error
	calls       map[string]int
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		greetings: map[string]string{"hello": "Hello! How can I help?", "hallo": "Hallo! Wie kann ich helfen?"},
		answer:    "The warranty period is 24 months.",
		verdict:   `{"verdict":"answerable"}`,
		calls:     map[string]int{},
	}
}

func (g *scriptedGenerator) count(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[kind]
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case strings.Contains(prompt, "intent classifier"):
		g.calls["classify"]++
		if g.classifyErr != nil {
			return "", g.classifyErr
		}
		msg := strings.ToLower(strings.TrimSpace(prompt[strings.LastIndex(prompt, "USER MESSAGE:")+len("USER MESSAGE:"):]))
		if reply, ok := g.greetings[msg]; ok {
			return `{"intent":"greeting_only","reply":"` + reply + `"}`, nil
		}
		return `{"intent":"needs_answer","reply":""}`, nil
	case strings.Contains(prompt, "You rewrite follow-up"):
		g.calls["rewrite"]++
		return g.rewrite, nil
	case strings.Contains(prompt, "Translate the following"):
		g.calls["translate"]++
		return g.translation, g.translate
	case strings.Contains(prompt, "You check answers"):
		g.calls["judge"]++
		return g.verdict, g.judgeErr
	default:
		g.calls["answer"]++
		return g.answer, g.answerErr
	}
}
