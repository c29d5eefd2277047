package model

const DefaultChatTitle = "New chat"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Chat struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Ctime    int64  `json:"ctime"`
	Mtime    int64  `json:"mtime"`
}

type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

type ChatMessage struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	Ctime     int64      `json:"ctime"`
}
