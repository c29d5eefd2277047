package model

type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Position   int       `json:"position"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	Ctime      int64     `json:"ctime"`
}

// ChunkHit is one nearest-neighbour match. Score is 1 - cosine distance.
type ChunkHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Position   int     `json:"position"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}
