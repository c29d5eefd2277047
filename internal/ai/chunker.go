package ai

import "strings"

// Chunk slides a window of maxChars runes across text with stride
// max(1, maxChars-overlap). Windows are trimmed and blank ones dropped, so
// whitespace-only input yields an empty slice. Output keeps reading order.
func Chunk(text string, maxChars, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" || maxChars <= 0 {
		return []string{}
	}
	if overlap < 0 {
		overlap = 0
	}
	runes := []rune(text)
	n := len(runes)
	step := maxChars - overlap
	if step < 1 {
		step = 1
	}
	chunks := make([]string, 0, n/step+1)
	for i := 0; i < n; i += step {
		end := i + maxChars
		if end > n {
			end = n
		}
		piece := strings.TrimSpace(string(runes[i:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if end == n {
			break
		}
	}
	return chunks
}
