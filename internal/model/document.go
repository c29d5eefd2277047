package model

const (
	DocumentStateIngesting = 1
	DocumentStateReady     = 2
)

type Document struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	UploaderID     string `json:"uploader_id,omitempty"`
	Filename       string `json:"filename"`
	FileType       string `json:"file_type"`
	ContentHash    string `json:"content_hash"`
	State          int    `json:"state"`
	ExpectedChunks int    `json:"expected_chunks"`
	ChunkCount     int    `json:"chunk_count"`
	ArchiveKey     string `json:"archive_key,omitempty"`
	Ctime          int64  `json:"ctime"`
	Mtime          int64  `json:"mtime"`
}

// Partial reports a ready-looking row whose stored chunks fall short of what chunking produced.
func (d *Document) Partial() bool {
	return d.State != DocumentStateReady || d.ChunkCount < d.ExpectedChunks
}
